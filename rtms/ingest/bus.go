package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/imtaco/rtms-ingest/internal/log"
)

type envelope struct {
	ev  Event
	ack chan struct{}
}

// subscriber owns a queue drained by its own goroutine, so a slow callback
// never blocks a read loop. Events for one subscriber keep publish order.
type subscriber struct {
	id      uint64
	kind    Kind
	fn      func(Event)
	queue   chan envelope
	dropped atomic.Int64
	once    sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.queue) })
}

type bus struct {
	mu     sync.RWMutex
	subs   map[Kind]map[uint64]*subscriber
	nextID uint64
	buffer int

	warn   rate.Sometimes
	logger *log.Logger
}

func newBus(buffer int, logger *log.Logger) *bus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &bus{
		subs:   make(map[Kind]map[uint64]*subscriber),
		buffer: buffer,
		warn:   rate.Sometimes{First: 1, Interval: 10 * time.Second},
		logger: logger,
	}
}

func (b *bus) setBuffer(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > 0 {
		b.buffer = n
	}
}

func (b *bus) subscribe(kind Kind, fn func(Event)) func() {
	b.mu.Lock()
	b.nextID++
	sub := &subscriber{
		id:    b.nextID,
		kind:  kind,
		fn:    fn,
		queue: make(chan envelope, b.buffer),
	}
	if b.subs[kind] == nil {
		b.subs[kind] = make(map[uint64]*subscriber)
	}
	b.subs[kind][sub.id] = sub
	b.mu.Unlock()

	go b.run(sub)

	return func() {
		b.mu.Lock()
		delete(b.subs[kind], sub.id)
		b.mu.Unlock()
		sub.close()
	}
}

func (b *bus) run(sub *subscriber) {
	for env := range sub.queue {
		if env.ack != nil {
			close(env.ack)
			continue
		}
		b.deliver(sub, env.ev)
	}
}

func (b *bus) deliver(sub *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked",
				log.String("kind", string(sub.kind)),
				log.Any("panic", r))
		}
	}()
	sub.fn(ev)
}

// publish never blocks; a full queue drops the event for that subscriber.
func (b *bus) publish(ev Event) {
	if ev == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[ev.Kind()] {
		select {
		case sub.queue <- envelope{ev: ev}:
		default:
			n := sub.dropped.Add(1)
			eventsDropped.Add(context.Background(), 1, kindAttr(ev.Kind()))
			b.warn.Do(func() {
				b.logger.Warn("subscriber queue full, dropping events",
					log.String("kind", string(ev.Kind())),
					log.Int64("dropped", n))
			})
		}
	}
}

// flush waits until every subscriber handled what was queued before the call.
func (b *bus) flush(ctx context.Context) error {
	b.mu.RLock()
	var acks []chan struct{}
	for _, subs := range b.subs {
		for _, sub := range subs {
			ack := make(chan struct{})
			select {
			case sub.queue <- envelope{ack: ack}:
				acks = append(acks, ack)
			case <-ctx.Done():
				b.mu.RUnlock()
				return ctx.Err()
			}
		}
	}
	b.mu.RUnlock()

	for _, ack := range acks {
		select {
		case <-ack:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// dropped sums events dropped for every live subscriber.
func (b *bus) dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var n int64
	for _, subs := range b.subs {
		for _, sub := range subs {
			n += sub.dropped.Load()
		}
	}
	return n
}
