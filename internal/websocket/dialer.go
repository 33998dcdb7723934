package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/imtaco/rtms-ingest/internal/errors"
	"github.com/imtaco/rtms-ingest/internal/log"
)

const (
	defaultPingInterval = 10 * time.Second
	defaultPingTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
	defaultBufMessages  = 16
	defaultReadLimit    = 16 << 20
	urgentMessages      = 8
)

type Options struct {
	// PingInterval < 0 disables transport pings.
	PingInterval time.Duration
	PingTimeout  time.Duration
	WriteTimeout time.Duration
	BufMessages  int
	ReadLimit    int64
	HTTPClient   *http.Client
	Header       http.Header
}

func (o Options) withDefaults() Options {
	if o.PingInterval == 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = defaultPingTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.BufMessages <= 0 {
		o.BufMessages = defaultBufMessages
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	return o
}

// Dialer opens sockets. Channels depend on it so tests can swap the network.
type Dialer interface {
	Dial(ctx context.Context, url string, h Handler) (Socket, error)
}

type dialerImpl struct {
	opts   Options
	logger *log.Logger
}

func NewDialer(opts Options, logger *log.Logger) Dialer {
	if logger == nil {
		panic("logger is required")
	}
	return &dialerImpl{
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Dial connects to url. ctx bounds the dial only; the socket lives until closed.
func (d *dialerImpl) Dial(ctx context.Context, url string, h Handler) (Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: d.opts.HTTPClient,
		HTTPHeader: d.opts.Header,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrDial, err, "dial %s", url)
	}
	conn.SetReadLimit(d.opts.ReadLimit)

	s := newSocket(conn, h, d.opts, d.logger)
	s.open()
	return s, nil
}
