// Package wstest provides an in-memory Dialer whose connections are driven by
// the test acting as the remote peer.
package wstest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/imtaco/rtms-ingest/internal/errors"
	"github.com/imtaco/rtms-ingest/internal/websocket"
)

const waitTimeout = 2 * time.Second

type Dialer struct {
	mu       sync.Mutex
	failures []error
	conns    chan *Conn
	dials    atomic.Int64
}

func NewDialer() *Dialer {
	return &Dialer{conns: make(chan *Conn, 64)}
}

// FailNext makes the following dials return errs, one per dial.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

func (d *Dialer) Dial(ctx context.Context, url string, h websocket.Handler) (websocket.Socket, error) {
	d.dials.Add(1)

	d.mu.Lock()
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		d.mu.Unlock()
		return nil, errors.Wrapf(websocket.ErrDial, err, "dial %s", url)
	}
	d.mu.Unlock()

	c := newConn(url, h)
	select {
	case d.conns <- c:
	case <-ctx.Done():
		c.shutdown(ctx.Err())
		return nil, errors.Wrapf(websocket.ErrDial, ctx.Err(), "dial %s", url)
	}
	return c, nil
}

// Dials counts every Dial call, failed ones included.
func (d *Dialer) Dials() int {
	return int(d.dials.Load())
}

// Next waits for the next dialed connection.
func (d *Dialer) Next(tb testing.TB) *Conn {
	tb.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitTimeout):
		tb.Fatal("timed out waiting for dial")
		return nil
	}
}

// NoDial asserts nothing is dialed within d.
func (d *Dialer) NoDial(tb testing.TB, wait time.Duration) {
	tb.Helper()
	select {
	case c := <-d.conns:
		tb.Fatalf("unexpected dial to %s", c.URL)
	case <-time.After(wait):
	}
}

type item struct {
	data  []byte
	close bool
	err   error
}

// Conn is the client end of a fake socket. Inbound messages and drops are
// delivered on one goroutine in the order they were queued.
type Conn struct {
	URL string

	h         websocket.Handler
	sent      chan []byte
	inbound   chan item
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	urgent    atomic.Int64
}

func newConn(url string, h websocket.Handler) *Conn {
	c := &Conn{
		URL:     url,
		h:       h,
		sent:    make(chan []byte, 256),
		inbound: make(chan item, 256),
		done:    make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Conn) loop() {
	for {
		select {
		case <-c.done:
			c.h.OnClose(c.closeErr)
			return
		case it := <-c.inbound:
			if it.close {
				c.shutdown(it.err)
				continue
			}
			select {
			case <-c.done:
			default:
				c.h.OnMessage(it.data)
			}
		}
	}
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.done)
	})
}

func (c *Conn) Send(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.push(v)
}

func (c *Conn) SendUrgent(v any) error {
	c.urgent.Add(1)
	return c.push(v)
}

func (c *Conn) push(v any) error {
	select {
	case <-c.done:
		return errors.New(websocket.ErrClosed, "socket closed")
	default:
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(websocket.ErrMarshal, err, "marshal outbound message")
	}
	select {
	case c.sent <- bs:
		return nil
	default:
		c.shutdown(websocket.ErrBufferFull)
		return websocket.ErrBufferFull
	}
}

func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Urgent counts messages sent on the priority lane.
func (c *Conn) Urgent() int {
	return int(c.urgent.Load())
}

// Read waits for the next message sent by the client and decodes it into a map.
func (c *Conn) Read(tb testing.TB) map[string]any {
	tb.Helper()
	select {
	case bs := <-c.sent:
		m := map[string]any{}
		if err := json.Unmarshal(bs, &m); err != nil {
			tb.Fatalf("client sent invalid json: %v", err)
		}
		return m
	case <-time.After(waitTimeout):
		tb.Fatalf("timed out waiting for message on %s", c.URL)
		return nil
	}
}

// Reply marshals v and delivers it to the client.
func (c *Conn) Reply(tb testing.TB, v any) {
	tb.Helper()
	bs, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal reply: %v", err)
	}
	c.Deliver(bs)
}

// Deliver queues raw bytes as an inbound message.
func (c *Conn) Deliver(data []byte) {
	c.inbound <- item{data: data}
}

// Drop simulates the peer going away after everything queued so far.
func (c *Conn) Drop(err error) {
	c.inbound <- item{close: true, err: err}
}

// NoMessage asserts the client sends nothing within wait.
func (c *Conn) NoMessage(tb testing.TB, wait time.Duration) {
	tb.Helper()
	select {
	case bs := <-c.sent:
		tb.Fatalf("unexpected message on %s: %s", c.URL, bs)
	case <-time.After(wait):
	}
}
