package ingest

import (
	"context"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/imtaco/rtms-ingest/internal/cryptoutil"
	"github.com/imtaco/rtms-ingest/internal/errors"
	"github.com/imtaco/rtms-ingest/internal/log"
	"github.com/imtaco/rtms-ingest/internal/websocket"
	"github.com/imtaco/rtms-ingest/rtms"
	"github.com/imtaco/rtms-ingest/rtms/protocol"
	"github.com/imtaco/rtms-ingest/rtms/registry"
	"github.com/imtaco/rtms-ingest/rtms/stream"
)

const (
	ErrAlreadyInitialized  errors.Code = "already_initialized"
	ErrNotInitialized      errors.Code = "not_initialized"
	ErrUnknownEvent        errors.Code = "unknown_event"
	ErrInvalidNotification errors.Code = "invalid_notification"
	ErrInvalidConfig       errors.Code = "invalid_config"
)

// Notification is the payload of a platform start/stop notification.
type Notification struct {
	MeetingUUID string
	StreamID    string
	// ServerURLs is the signaling endpoint for start notifications.
	ServerURLs string
}

func (n Notification) Identity() rtms.Identity {
	return rtms.Identity{MeetingUUID: n.MeetingUUID, StreamID: n.StreamID}
}

type Option func(*Manager)

// WithDialer replaces the websocket dialer used by every channel.
func WithDialer(d websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithSigner replaces the HMAC signer built from the configured credentials.
func WithSigner(s cryptoutil.Signer) Option {
	return func(m *Manager) { m.signer = s }
}

func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// Manager is the process-wide facade: it turns notifications into stream
// handlers and fans their output out to subscribers.
type Manager struct {
	logger *log.Logger
	dialer websocket.Dialer
	signer cryptoutil.Signer
	clock  clockwork.Clock
	bus    *bus

	mu          sync.Mutex
	initialized bool
	cfg         Config
	media       rtms.MediaType
	sign        cryptoutil.Signer
	registry    *registry.Registry[*stream.Handler]
}

func New(logger *log.Logger, opts ...Option) *Manager {
	if logger == nil {
		panic("logger is required")
	}
	m := &Manager{
		logger: logger,
		clock:  clockwork.NewRealClock(),
		bus:    newBus(defaultSubscriberBuffer, logger),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = websocket.NewDialer(websocket.Options{}, logger.Module("websocket"))
	}
	return m
}

// Init applies process-wide settings. It fails when called twice without Stop.
// Each Init starts an empty registry: metadata archived before a Stop is not
// carried over.
func (m *Manager) Init(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return errors.New(ErrAlreadyInitialized, "manager already initialized")
	}

	cfg = cfg.Defaults()
	media, err := rtms.ParseMediaTypes(cfg.MediaTypes)
	if err != nil {
		return errors.Wrap(ErrInvalidConfig, err, "media_types")
	}

	sign := m.signer
	if sign == nil {
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return errors.New(ErrInvalidConfig, "client_id and client_secret are required")
		}
		sign = cryptoutil.HMACSigner(cfg.ClientID, cfg.ClientSecret)
	}

	reg, err := registry.New[*stream.Handler](cfg.MetadataCacheSize, m.logger.Module("registry"))
	if err != nil {
		return errors.Wrap(ErrInvalidConfig, err, "metadata cache")
	}

	m.bus.setBuffer(cfg.SubscriberBuffer)
	m.cfg = cfg
	m.media = media
	m.sign = sign
	m.registry = reg
	m.initialized = true

	m.logger.Info("ingestion initialized",
		log.String("media", media.String()),
		log.Bool("unified", cfg.UseUnifiedSocket),
		log.Duration("backoff", cfg.ReconnectBackoff),
		log.Int("maxStreams", cfg.MaxConcurrentStreams))
	return nil
}

// HandleEvent routes a platform notification: names ending in _started open a
// stream, names ending in _stopped close it.
func (m *Manager) HandleEvent(ctx context.Context, name string, n Notification) error {
	switch {
	case strings.HasSuffix(name, "_started"):
		return m.startStream(n)
	case strings.HasSuffix(name, "_stopped"):
		return m.stopStream(ctx, n, name)
	default:
		m.logger.Debug("ignore notification", log.String("event", name))
		return errors.Newf(ErrUnknownEvent, "unhandled event %q", name)
	}
}

func (m *Manager) startStream(n Notification) error {
	if n.MeetingUUID == "" || n.StreamID == "" || n.ServerURLs == "" {
		return errors.New(ErrInvalidNotification, "meeting uuid, stream id and server urls are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return errors.New(ErrNotInitialized, "manager not initialized")
	}

	id := n.Identity()
	if _, ok := m.registry.Get(id); ok {
		m.logger.Info("stream already active", log.String("streamId", id.StreamID))
		return errors.Newf(registry.ErrStreamExists, "stream %s already active", id)
	}

	if limit := m.cfg.MaxConcurrentStreams; limit > 0 && m.registry.Len() >= limit {
		se := &protocol.StatusError{
			Code:        protocol.ErrCapacity,
			Identity:    id,
			Causes:      []string{"the local concurrent stream limit is reached"},
			Remediation: "raise max_concurrent_streams or stop unused streams",
		}
		m.bus.publish(ErrorEvent{Err: se})
		return se
	}

	sink := &handlerSink{bus: m.bus, registry: m.registry}
	h := stream.New(stream.Options{
		Identity:          id,
		SignalingURL:      n.ServerURLs,
		MediaTypes:        m.media,
		Unified:           m.cfg.UseUnifiedSocket,
		Backoff:           m.cfg.ReconnectBackoff,
		MaxAttempts:       m.cfg.ReconnectMaxAttempts,
		HandshakeTimeout:  m.cfg.HandshakeTimeout,
		GapFilling:        m.cfg.EnableGapFilling,
		PayloadEncryption: m.cfg.PayloadEncryption,
		Dialer:            m.dialer,
		Signer:            m.sign,
		Sink:              sink,
		Clock:             m.clock,
		Logger:            m.logger.Module("stream"),
	})
	sink.h = h

	if err := m.registry.Add(h); err != nil {
		return err
	}
	streamsStarted.Add(context.Background(), 1)
	m.logger.Info("start stream",
		log.String("meetingUuid", id.MeetingUUID),
		log.String("streamId", id.StreamID),
		log.String("session", h.SessionID()))
	h.Start()
	return nil
}

// stopStream is a no-op for streams that are not active, so repeated stop
// notifications are harmless.
func (m *Manager) stopStream(ctx context.Context, n Notification, name string) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return errors.New(ErrNotInitialized, "manager not initialized")
	}
	reg := m.registry
	m.mu.Unlock()

	var (
		h  *stream.Handler
		ok bool
	)
	if n.MeetingUUID != "" {
		h, ok = reg.Get(n.Identity())
	} else {
		h, ok = reg.FindByStreamID(n.StreamID)
	}
	if !ok {
		m.logger.Debug("stop for inactive stream", log.String("streamId", n.StreamID))
		return nil
	}
	return h.Stop(ctx, name)
}

// On subscribes fn to one event kind. The returned func unsubscribes.
func (m *Manager) On(kind Kind, fn func(Event)) func() {
	return m.bus.subscribe(kind, fn)
}

// Subscribe registers a typed callback for the event kind of E.
func Subscribe[E Event](m *Manager, fn func(E)) func() {
	var zero E
	return m.On(zero.Kind(), func(ev Event) {
		if e, ok := ev.(E); ok {
			fn(e)
		}
	})
}

// Stop closes every active stream and waits until subscribers saw their
// stopped events. Archived metadata stays readable until the next Init,
// which discards it.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = false
	handlers := m.registry.List()
	m.mu.Unlock()

	m.logger.Info("stop ingestion", log.Int("streams", len(handlers)))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, h := range handlers {
		eg.Go(func() error {
			return h.Stop(egCtx, "ingestion stopped")
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return m.bus.flush(ctx)
}

// Metadata returns the live or archived metadata of a stream.
func (m *Manager) Metadata(id rtms.Identity) (rtms.StreamMetadata, bool) {
	reg := m.currentRegistry()
	if reg == nil {
		return rtms.StreamMetadata{}, false
	}
	return reg.GetMetadata(id)
}

// MetadataByStreamID is Metadata for callers that only know the stream id.
func (m *Manager) MetadataByStreamID(streamID string) (rtms.StreamMetadata, bool) {
	reg := m.currentRegistry()
	if reg == nil {
		return rtms.StreamMetadata{}, false
	}
	return reg.FindMetadataByStreamID(streamID)
}

// ActiveStreams returns snapshots of every running stream.
func (m *Manager) ActiveStreams() []rtms.StreamMetadata {
	reg := m.currentRegistry()
	if reg == nil {
		return nil
	}
	var out []rtms.StreamMetadata
	reg.Range(func(h *stream.Handler) bool {
		out = append(out, h.Snapshot())
		return true
	})
	return out
}

// DroppedEvents counts events lost to full subscriber queues.
func (m *Manager) DroppedEvents() int64 {
	return m.bus.dropped()
}

func (m *Manager) currentRegistry() *registry.Registry[*stream.Handler] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry
}

// handlerSink adapts one handler's output to the bus and the registry.
type handlerSink struct {
	h        *stream.Handler
	bus      *bus
	registry *registry.Registry[*stream.Handler]
}

func (s *handlerSink) OnFrame(f rtms.Frame) {
	s.bus.publish(eventFromFrame(f))
}

func (s *handlerSink) OnStarted(meta rtms.StreamMetadata) {
	s.bus.publish(StartedEvent{Metadata: meta})
}

func (s *handlerSink) OnError(err *protocol.StatusError) {
	s.bus.publish(ErrorEvent{Err: err})
}

// OnStopped archives before publishing so subscribers can already read the
// final metadata.
func (s *handlerSink) OnStopped(meta rtms.StreamMetadata) {
	s.registry.Archive(meta)
	s.registry.Remove(s.h)
	s.bus.publish(StoppedEvent{Metadata: meta})
}
