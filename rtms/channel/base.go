package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/imtaco/rtms-ingest/internal/cryptoutil"
	"github.com/imtaco/rtms-ingest/internal/errors"
	"github.com/imtaco/rtms-ingest/internal/log"
	intotel "github.com/imtaco/rtms-ingest/internal/otel"
	"github.com/imtaco/rtms-ingest/internal/websocket"
	"github.com/imtaco/rtms-ingest/rtms"
	"github.com/imtaco/rtms-ingest/rtms/protocol"
)

// Params is shared by both channel kinds.
type Params struct {
	Identity          rtms.Identity
	Dialer            websocket.Dialer
	Signer            cryptoutil.Signer
	PayloadEncryption bool
	Logger            *log.Logger
}

func (p *Params) validate() {
	if p.Dialer == nil {
		panic("dialer is required")
	}
	if p.Signer == nil {
		panic("signer is required")
	}
	if p.Logger == nil {
		panic("logger is required")
	}
}

type handshakeResult struct {
	resp *protocol.HandshakeResponse
	err  error
}

// Stats counts inbound traffic on one channel.
type Stats struct {
	Messages     int64
	Frames       int64
	DecodeErrors int64
	KeepAlives   int64
}

type counters struct {
	messages     atomic.Int64
	frames       atomic.Int64
	decodeErrors atomic.Int64
	keepAlives   atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Messages:     c.messages.Load(),
		Frames:       c.frames.Load(),
		DecodeErrors: c.decodeErrors.Load(),
		KeepAlives:   c.keepAlives.Load(),
	}
}

// base owns one socket and the handshake/keep-alive mechanics.
type base struct {
	name   string
	params Params

	mu      sync.Mutex
	state   rtms.ConnectionState
	socket  websocket.Socket
	waiting chan handshakeResult

	closing  atomic.Bool
	seq      atomic.Int64
	counters counters
	warnOnce rate.Sometimes
	logger   *log.Logger
}

func (b *base) init(name string, params Params) {
	params.validate()
	b.name = name
	b.params = params
	b.state = rtms.StateConnecting
	b.warnOnce = rate.Sometimes{First: 3, Interval: 10 * time.Second}
	b.logger = params.Logger.With(
		log.String("channel", name),
		log.String("meetingUuid", params.Identity.MeetingUUID),
		log.String("streamId", params.Identity.StreamID),
	)
}

func (b *base) Name() string {
	return b.name
}

func (b *base) State() rtms.ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) Stats() Stats {
	return b.counters.snapshot()
}

// transition moves forward one state. Invalid moves are ignored.
func (b *base) transition(to rtms.ConnectionState) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transitionLocked(to)
}

func (b *base) transitionLocked(to rtms.ConnectionState) bool {
	if !b.state.CanTransition(to) {
		b.logger.Debug("ignore state transition",
			log.String("from", b.state.String()),
			log.String("to", to.String()))
		return false
	}
	b.logger.Debug("state transition",
		log.String("from", b.state.String()),
		log.String("to", to.String()))
	b.state = to
	return true
}

// handshake dials url, sends req and waits for the handshake response.
func (b *base) handshake(ctx context.Context, url string, h websocket.Handler, req any) (resp *protocol.HandshakeResponse, err error) {
	ctx, span := intotel.StartSpan(ctx, tracer, "channel.handshake",
		attribute.String("rtms.channel", b.name),
		attribute.String("rtms.stream_id", b.params.Identity.StreamID))
	start := time.Now()
	defer func() {
		handshakeLatency.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("channel", b.name)))
		intotel.RecordError(span, err)
		span.End()
	}()

	waiting := make(chan handshakeResult, 1)
	b.mu.Lock()
	if b.state != rtms.StateConnecting || b.socket != nil {
		b.mu.Unlock()
		return nil, errors.Newf(protocol.ErrProtocol, "%s already opened", b.name)
	}
	b.waiting = waiting
	b.mu.Unlock()

	socket, err := b.params.Dialer.Dial(ctx, url, h)
	if err != nil {
		b.transition(rtms.StateClosed)
		return nil, errors.Wrap(protocol.ErrConnection, err, "open socket")
	}

	b.mu.Lock()
	b.socket = socket
	closedEarly := b.state == rtms.StateClosed
	b.mu.Unlock()
	if closedEarly {
		b.abort()
		return nil, errors.New(protocol.ErrConnection, "channel closed during dial")
	}

	if err := socket.Send(ctx, req); err != nil {
		b.abort()
		return nil, errors.Wrap(protocol.ErrConnection, err, "send handshake")
	}

	select {
	case <-ctx.Done():
		b.abort()
		return nil, errors.Wrap(protocol.ErrHandshakeTimeout, ctx.Err(), "await handshake response")
	case <-socket.Done():
		b.abort()
		return nil, errors.New(protocol.ErrConnection, "socket closed during handshake")
	case res := <-waiting:
		if res.err != nil {
			b.abort()
			return nil, res.err
		}
		if !res.resp.OK() {
			b.abort()
			se := protocol.StatusToError(res.resp.StatusCode, res.resp.Reason)
			se.Channel = b.name
			se.Identity = b.params.Identity
			return nil, se
		}
		return res.resp, nil
	}
}

// deliverHandshake hands a response (or a malformed-response error) to Open.
// An accepted response authenticates the channel before the read loop moves
// on, so frames queued behind it are not mistaken for pre-auth traffic.
func (b *base) deliverHandshake(resp *protocol.HandshakeResponse, err error) bool {
	b.mu.Lock()
	waiting := b.waiting
	b.waiting = nil
	if waiting != nil && err == nil && resp != nil && resp.OK() {
		b.transitionLocked(rtms.StateAuthenticated)
	}
	b.mu.Unlock()

	if waiting == nil {
		return false
	}
	waiting <- handshakeResult{resp: resp, err: err}
	return true
}

func (b *base) awaitingHandshake() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting != nil
}

// authenticated reports whether the handshake succeeded and the channel is
// still open.
func (b *base) authenticated() bool {
	switch b.State() {
	case rtms.StateAuthenticated, rtms.StateReady, rtms.StateStreaming:
		return true
	}
	return false
}

func (b *base) answerKeepAlive(ts int64) {
	b.counters.keepAlives.Add(1)

	b.mu.Lock()
	socket := b.socket
	b.mu.Unlock()
	if socket == nil {
		return
	}
	resp := &protocol.KeepAliveResponse{
		MsgType:   protocol.MsgKeepAliveResp,
		Timestamp: ts,
	}
	if err := socket.SendUrgent(resp); err != nil {
		b.logger.Warn("failed to answer keep-alive", log.Int64("timestamp", ts), log.Error(err))
	}
}

func (b *base) send(ctx context.Context, v any) error {
	b.mu.Lock()
	socket := b.socket
	b.mu.Unlock()
	if socket == nil {
		return errors.New(protocol.ErrConnection, "socket not open")
	}
	return socket.Send(ctx, v)
}

// decode parses one inbound message, counting and dropping bad frames.
func (b *base) decode(data []byte) protocol.Message {
	b.counters.messages.Add(1)

	msg, err := protocol.Decode(data)
	if err == nil {
		return msg
	}

	b.counters.decodeErrors.Add(1)
	frameDecodeErrors.Add(context.Background(), 1)
	if b.awaitingHandshake() {
		b.deliverHandshake(nil, errors.Wrap(protocol.ErrAuth, err, "malformed handshake response"))
		return nil
	}
	b.warnOnce.Do(func() {
		b.logger.Warn("drop malformed message", log.Error(err))
	})
	return nil
}

// closedErr converts the socket close cause into the error reported upward.
func (b *base) closedErr(err error) error {
	b.transition(rtms.StateClosed)
	if b.closing.Load() {
		return nil
	}
	if err == nil {
		return errors.New(protocol.ErrConnection, "socket closed")
	}
	return errors.Wrap(protocol.ErrConnection, err, "socket dropped")
}

// abort closes after a failed open; the failure is reported by Open itself.
func (b *base) abort() {
	_ = b.Close()
}

// Close tears down the socket. The owner gets OnClosed(nil).
func (b *base) Close() error {
	b.closing.Store(true)

	b.mu.Lock()
	socket := b.socket
	b.transitionLocked(rtms.StateClosed)
	b.mu.Unlock()

	if socket != nil {
		return socket.Close()
	}
	return nil
}

func (b *base) nextSeq() int64 {
	return b.seq.Add(1)
}
