package websocket

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/imtaco/rtms-ingest/internal/errors"
	"github.com/imtaco/rtms-ingest/internal/log"
)

const (
	ErrBufferFull errors.Code = "buffer_full"
	ErrMarshal    errors.Code = "marshal_error"
	ErrDial       errors.Code = "dial_error"
	ErrClosed     errors.Code = "socket_closed"
)

// Handler receives socket lifecycle callbacks. OnMessage runs on the read loop,
// in arrival order. OnClose runs exactly once, with nil after a local Close.
type Handler interface {
	OnMessage(data []byte)
	OnClose(err error)
}

// Socket is one connected websocket.
type Socket interface {
	// Send queues a JSON message behind earlier ones.
	Send(ctx context.Context, v any) error
	// SendUrgent queues a JSON message ahead of everything sent with Send.
	SendUrgent(v any) error
	Close() error
	Done() <-chan struct{}
}

type wsSocket struct {
	conn     *websocket.Conn
	handler  Handler
	chUrgent chan []byte
	chBuf    chan []byte
	opts     Options

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	logger    *log.Logger
}

func newSocket(conn *websocket.Conn, h Handler, opts Options, logger *log.Logger) *wsSocket {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsSocket{
		conn:     conn,
		handler:  h,
		chUrgent: make(chan []byte, urgentMessages),
		chBuf:    make(chan []byte, opts.BufMessages),
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   logger,
	}
}

func (ws *wsSocket) open() {
	go func() {
		err := ws.writePump(ws.ctx)
		ws.close(err)
	}()
	go ws.readLoop()
}

func (ws *wsSocket) Send(ctx context.Context, v any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ws.ctx.Done():
		return errors.New(ErrClosed, "socket closed")
	default:
	}

	bs, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(ErrMarshal, err, "marshal outbound message")
	}

	select {
	case ws.chBuf <- bs:
		return nil
	default:
		ws.close(ErrBufferFull)
		return ErrBufferFull
	}
}

func (ws *wsSocket) SendUrgent(v any) error {
	select {
	case <-ws.ctx.Done():
		return errors.New(ErrClosed, "socket closed")
	default:
	}

	bs, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(ErrMarshal, err, "marshal outbound message")
	}

	select {
	case ws.chUrgent <- bs:
		return nil
	default:
		ws.close(ErrBufferFull)
		return ErrBufferFull
	}
}

func (ws *wsSocket) Close() error {
	ws.close(nil)
	return nil
}

func (ws *wsSocket) Done() <-chan struct{} {
	return ws.done
}

func (ws *wsSocket) readLoop() {
	defer func() {
		<-ws.ctx.Done()
		close(ws.done)
		ws.handler.OnClose(ws.closeErr)
	}()

	for {
		typ, data, err := ws.conn.Read(ws.ctx)
		if err != nil {
			ws.close(err)
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		ws.handler.OnMessage(data)
	}
}

func (ws *wsSocket) close(err error) {
	ws.closeOnce.Do(func() {
		aborted := false
		code := websocket.StatusNormalClosure

		switch {
		case err == nil:
			ws.logger.Debug("socket closed locally")
		case websocket.CloseStatus(err) != -1:
			ws.logger.Info("socket closed by peer", log.Any("code", websocket.CloseStatus(err)))
			aborted = true
		case errors.Is(err, net.ErrClosed), errors.Is(err, context.Canceled):
			ws.logger.Info("socket connection lost", log.Error(err))
			aborted = true
		case errors.Is(err, ErrBufferFull):
			ws.logger.Warn("socket closed due to buffer full")
			code = websocket.StatusPolicyViolation
		default:
			ws.logger.Warn("socket closed due to error", log.Error(err))
			code = websocket.StatusInternalError
		}

		ws.closeErr = err
		ws.cancel()
		if aborted {
			_ = ws.conn.CloseNow()
			return
		}
		// Close waits for the peer's close frame; never block the caller on it.
		go func() { _ = ws.conn.Close(code, "bye") }()
	})
}

func (ws *wsSocket) writePump(ctx context.Context) error {
	var tick <-chan time.Time
	if ws.opts.PingInterval > 0 {
		ticker := time.NewTicker(ws.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		// urgent messages always go first
		select {
		case bs := <-ws.chUrgent:
			if err := ws.write(ctx, bs); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case bs := <-ws.chUrgent:
			if err := ws.write(ctx, bs); err != nil {
				return err
			}
		case bs := <-ws.chBuf:
			if err := ws.write(ctx, bs); err != nil {
				return err
			}
		case <-tick:
			if err := ws.ping(ctx); err != nil {
				return err
			}
		}
	}
}

func (ws *wsSocket) write(ctx context.Context, bs []byte) error {
	ctx, cancel := context.WithTimeout(ctx, ws.opts.WriteTimeout)
	defer cancel()
	return ws.conn.Write(ctx, websocket.MessageText, bs)
}

func (ws *wsSocket) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ws.opts.PingTimeout)
	defer cancel()

	return ws.conn.Ping(ctx)
}
