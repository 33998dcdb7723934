package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/imtaco/rtms-ingest/internal/cryptoutil"
	"github.com/imtaco/rtms-ingest/internal/log"
	"github.com/imtaco/rtms-ingest/internal/retry"
	"github.com/imtaco/rtms-ingest/internal/websocket"
	"github.com/imtaco/rtms-ingest/rtms"
	"github.com/imtaco/rtms-ingest/rtms/channel"
	"github.com/imtaco/rtms-ingest/rtms/protocol"
)

const (
	DefaultBackoff          = 3 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	inboxSize               = 64
)

//go:generate mockgen -source=handler.go -destination=mocks/sink.go -package=mocks Sink

// Sink receives everything a handler publishes. Calls must not block.
type Sink interface {
	OnFrame(frame rtms.Frame)
	OnStarted(meta rtms.StreamMetadata)
	OnError(err *protocol.StatusError)
	OnStopped(meta rtms.StreamMetadata)
}

type Options struct {
	Identity          rtms.Identity
	SignalingURL      string
	MediaTypes        rtms.MediaType
	MediaConfigs      map[rtms.MediaType]rtms.MediaTypeConfig
	Unified           bool
	Backoff           time.Duration
	MaxAttempts       int
	HandshakeTimeout  time.Duration
	GapFilling        bool
	PayloadEncryption bool
	CreatedAt         time.Time

	Dialer websocket.Dialer
	Signer cryptoutil.Signer
	Sink   Sink
	Clock  clockwork.Clock
	Logger *log.Logger
}

// mediaSlot is the handler's view of one media channel. Actor-owned except live.
type mediaSlot struct {
	key    rtms.MediaType
	ch     *channel.Media
	gen    uint64
	live   atomic.Uint64 // gen whose frames may be delivered, 0 when none
	state  rtms.ConnectionState
	timer  clockwork.Timer
	policy backoff.BackOff
	// dropped holds a close that arrived before the open result was handled.
	dropped error
}

// Handler drives one stream. All state transitions run on a single actor
// goroutine; channels and timers talk to it through post.
type Handler struct {
	opts      Options
	id        rtms.Identity
	sessionID string
	clock     clockwork.Clock
	logger    *log.Logger

	inbox     chan func()
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once

	// actor-owned
	epoch           uint64
	shouldReconnect bool
	signaling       *channel.Signaling
	sigResp         *protocol.HandshakeResponse
	sigDropped      error
	sigPolicy       backoff.BackOff
	sigTimer        clockwork.Timer
	readySent       bool
	announced       bool
	slots           map[rtms.MediaType]*mediaSlot

	// frame path
	frameMu sync.RWMutex
	stopped bool
	stats   *packetStats

	metaMu     sync.Mutex
	state      rtms.HandlerState
	reconnects int
	stopReason string
	lastErr    string
	stoppedAt  time.Time
	configs    map[rtms.MediaType]rtms.MediaTypeConfig
}

func New(opts Options) *Handler {
	if opts.Logger == nil {
		panic("logger is required")
	}
	if opts.Dialer == nil || opts.Signer == nil || opts.Sink == nil {
		panic("dialer, signer and sink are required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.MediaTypes == 0 {
		opts.MediaTypes = rtms.MediaAll
	}
	opts.MediaTypes = opts.MediaTypes.Expand()
	if opts.CreatedAt.IsZero() {
		opts.CreatedAt = opts.Clock.Now()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sessionID := uuid.New().String()
	h := &Handler{
		opts:            opts,
		id:              opts.Identity,
		sessionID:       sessionID,
		clock:           opts.Clock,
		inbox:           make(chan func(), inboxSize),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		shouldReconnect: true,
		sigPolicy:       retry.Constant(opts.Backoff, opts.MaxAttempts),
		slots:           make(map[rtms.MediaType]*mediaSlot),
		stats:           newPacketStats(),
		state:           rtms.HandlerInitializing,
		configs:         make(map[rtms.MediaType]rtms.MediaTypeConfig),
		logger: opts.Logger.With(
			log.String("meetingUuid", opts.Identity.MeetingUUID),
			log.String("streamId", opts.Identity.StreamID),
			log.String("session", sessionID),
		),
	}
	for _, key := range h.slotKeys() {
		h.slots[key] = &mediaSlot{
			key:    key,
			state:  rtms.StateClosed,
			policy: retry.Constant(opts.Backoff, opts.MaxAttempts),
		}
	}
	return h
}

func (h *Handler) Identity() rtms.Identity { return h.id }

func (h *Handler) SessionID() string { return h.sessionID }

func (h *Handler) Done() <-chan struct{} { return h.done }

func (h *Handler) State() rtms.HandlerState {
	h.metaMu.Lock()
	defer h.metaMu.Unlock()
	return h.state
}

// Start launches the actor and opens signaling.
func (h *Handler) Start() {
	if h.ctx.Err() != nil || !h.started.CompareAndSwap(false, true) {
		return
	}
	activeStreams.Add(h.ctx, 1)
	go h.loop()
	h.post(h.connectSignaling)
}

// Stop closes every channel and cancels pending reconnects. Frames stop
// being published before Stop returns.
func (h *Handler) Stop(ctx context.Context, reason string) error {
	h.frameMu.Lock()
	h.stopped = true
	h.frameMu.Unlock()

	if !h.started.Load() {
		h.closeOnce.Do(func() {
			h.cancel()
			close(h.done)
		})
		return nil
	}

	h.post(func() {
		h.shouldReconnect = false
		h.finish(reason)
	})

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) post(fn func()) {
	select {
	case h.inbox <- fn:
	case <-h.ctx.Done():
	}
}

func (h *Handler) loop() {
	defer h.closeOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-h.ctx.Done():
			return
		case fn := <-h.inbox:
			fn()
		}
	}
}

func (h *Handler) slotKeys() []rtms.MediaType {
	if h.opts.Unified {
		return []rtms.MediaType{h.opts.MediaTypes}
	}
	return h.opts.MediaTypes.Split()
}

func (h *Handler) setState(s rtms.HandlerState) {
	h.metaMu.Lock()
	prev := h.state
	h.state = s
	h.metaMu.Unlock()
	if prev != s {
		h.logger.Info("handler state",
			log.String("from", prev.String()),
			log.String("to", s.String()))
	}
}

func (h *Handler) channelParams() channel.Params {
	return channel.Params{
		Identity:          h.id,
		Dialer:            h.opts.Dialer,
		Signer:            h.opts.Signer,
		PayloadEncryption: h.opts.PayloadEncryption,
		Logger:            h.logger,
	}
}

// connectSignaling starts a new epoch: any result, timer or close callback
// from an older epoch is ignored.
func (h *Handler) connectSignaling() {
	if !h.shouldReconnect {
		return
	}
	h.epoch++
	ep := h.epoch
	h.readySent = false
	h.sigResp = nil
	h.sigDropped = nil
	h.setState(rtms.HandlerInitializing)

	sig := channel.NewSignaling(h.channelParams(), h.opts.MediaTypes, &signalingEvents{h: h, epoch: ep})
	h.signaling = sig

	go func() {
		ctx, cancel := context.WithTimeout(h.ctx, h.opts.HandshakeTimeout)
		defer cancel()
		resp, err := sig.Open(ctx, h.opts.SignalingURL)
		h.post(func() { h.onSignalingOpened(ep, sig, resp, err) })
	}()
}

func (h *Handler) onSignalingOpened(ep uint64, sig *channel.Signaling, resp *protocol.HandshakeResponse, err error) {
	if ep != h.epoch || !h.shouldReconnect {
		_ = sig.Close()
		return
	}
	if err != nil {
		se := protocol.Classify(err)
		h.logger.Warn("signaling handshake failed", log.Error(err))
		if !se.Retryable() {
			h.fatal(se, "signaling")
			return
		}
		h.recordError(se)
		h.scheduleSignalingRetry()
		return
	}

	if h.sigDropped != nil {
		h.signalingLost(h.sigDropped)
		return
	}

	h.sigPolicy.Reset()
	h.sigResp = resp
	h.setState(rtms.HandlerSignalingUp)
	for _, key := range h.slotKeys() {
		h.openMedia(key)
	}
}

func (h *Handler) openMedia(key rtms.MediaType) {
	slot := h.slots[key]
	slot.gen++
	g := slot.gen
	ep := h.epoch

	urlKey := key
	if h.opts.Unified {
		urlKey = rtms.MediaAll
	}
	url := h.sigResp.MediaServer.ServerURLs.For(urlKey)

	ch := channel.NewMedia(h.channelParams(), key, h.opts.MediaConfigs, &mediaEvents{h: h, key: key, gen: g})
	slot.ch = ch
	slot.state = rtms.StateConnecting
	slot.dropped = nil

	go func() {
		ctx, cancel := context.WithTimeout(h.ctx, h.opts.HandshakeTimeout)
		defer cancel()
		err := ch.Open(ctx, url)
		h.post(func() { h.onMediaOpened(ep, key, g, ch, err) })
	}()
}

func (h *Handler) onMediaOpened(ep uint64, key rtms.MediaType, g uint64, ch *channel.Media, err error) {
	slot := h.slots[key]
	if ep != h.epoch || slot.gen != g || !h.shouldReconnect {
		_ = ch.Close()
		return
	}
	if err != nil {
		se := protocol.Classify(err)
		se.Media = key
		h.logger.Warn("media handshake failed", log.String("media", key.String()), log.Error(err))
		if !se.Retryable() {
			h.fatal(se, ch.Name())
			return
		}
		slot.state = rtms.StateClosed
		h.recordError(se)
		h.scheduleMediaRetry(key)
		return
	}
	if slot.dropped != nil {
		h.mediaLost(slot, slot.dropped)
		return
	}

	slot.policy.Reset()
	slot.state = rtms.StateReady
	h.metaMu.Lock()
	for t, cfg := range ch.Configs() {
		h.configs[t] = cfg
	}
	h.metaMu.Unlock()

	if h.readySent {
		// single channel recovered while signaling stayed up
		ch.MarkStreaming()
		slot.state = rtms.StateStreaming
		slot.live.Store(g)
		h.maybeStreaming()
		return
	}

	for _, s := range h.slots {
		if s.state != rtms.StateReady {
			h.setState(rtms.HandlerSignalingUp)
			return
		}
	}
	h.setState(rtms.HandlerMediaUp)

	if err := h.signaling.SendClientReady(h.ctx); err != nil {
		h.signalingLost(err)
		return
	}
	h.readySent = true
	for _, s := range h.slots {
		s.ch.MarkStreaming()
		s.state = rtms.StateStreaming
		s.live.Store(s.gen)
	}
	h.maybeStreaming()
}

func (h *Handler) maybeStreaming() {
	for _, s := range h.slots {
		if s.state != rtms.StateStreaming {
			h.setState(rtms.HandlerDegraded)
			return
		}
	}
	h.setState(rtms.HandlerStreaming)
	if !h.announced {
		h.announced = true
		h.opts.Sink.OnStarted(h.Snapshot())
	}
}

func (h *Handler) onSignalingClosed(ep uint64, err error) {
	if ep != h.epoch || err == nil || !h.shouldReconnect {
		return
	}
	if h.sigResp == nil {
		// open result not handled yet, or the session is already being
		// renegotiated; onSignalingOpened picks the drop up
		h.sigDropped = err
		return
	}
	h.signalingLost(err)
}

// signalingLost tears every channel down and schedules a fresh signaling
// handshake. Late callbacks of the lost session find sigResp unset.
func (h *Handler) signalingLost(err error) {
	h.logger.Warn("signaling dropped, renegotiating every channel", log.Error(err))
	h.recordError(protocol.Classify(err))

	h.closeMedia(true)
	if h.signaling != nil {
		_ = h.signaling.Close()
		h.signaling = nil
	}
	h.sigResp = nil
	h.readySent = false
	h.setState(rtms.HandlerInitializing)
	h.scheduleSignalingRetry()
}

func (h *Handler) onMediaClosed(key rtms.MediaType, g uint64, err error) {
	slot := h.slots[key]
	if slot.gen != g || err == nil || !h.shouldReconnect {
		return
	}
	if slot.state == rtms.StateConnecting {
		// open result not handled yet; onMediaOpened picks the drop up
		slot.dropped = err
		return
	}
	if slot.state == rtms.StateClosed {
		return
	}
	h.mediaLost(slot, err)
}

func (h *Handler) mediaLost(slot *mediaSlot, err error) {
	h.logger.Warn("media dropped", log.String("media", slot.key.String()), log.Error(err))
	h.recordError(protocol.Classify(err))

	slot.live.Store(0)
	slot.state = rtms.StateClosed
	if slot.ch != nil {
		_ = slot.ch.Close()
	}
	h.markGaps(slot.key)
	if h.readySent {
		h.setState(rtms.HandlerDegraded)
	}
	h.scheduleMediaRetry(slot.key)
}

// closeMedia force-closes every media channel and invalidates its generation.
func (h *Handler) closeMedia(markGaps bool) {
	for key, slot := range h.slots {
		slot.gen++
		slot.live.Store(0)
		if slot.timer != nil {
			slot.timer.Stop()
			slot.timer = nil
		}
		if slot.ch != nil {
			_ = slot.ch.Close()
			slot.ch = nil
		}
		if markGaps && slot.state == rtms.StateStreaming {
			h.markGaps(key)
		}
		slot.state = rtms.StateClosed
	}
}

func (h *Handler) markGaps(key rtms.MediaType) {
	if !h.opts.GapFilling {
		return
	}
	for _, t := range key.Split() {
		if t.Continuous() {
			h.stats.markGap(t)
		}
	}
}

func (h *Handler) scheduleSignalingRetry() {
	d := h.sigPolicy.NextBackOff()
	if d == retry.Stop {
		h.fatal(&protocol.StatusError{
			Code:        protocol.ErrConnection,
			Causes:      []string{"signaling reconnect attempts exhausted"},
			Remediation: "check connectivity to the platform",
		}, "signaling")
		return
	}

	ep := h.epoch
	h.sigTimer = h.clock.AfterFunc(d, func() {
		h.post(func() {
			if ep != h.epoch || !h.shouldReconnect {
				return
			}
			h.countReconnect("signaling")
			h.connectSignaling()
		})
	})
	h.logger.Info("signaling reconnect scheduled", log.Duration("after", d))
}

func (h *Handler) scheduleMediaRetry(key rtms.MediaType) {
	slot := h.slots[key]
	d := slot.policy.NextBackOff()
	if d == retry.Stop {
		h.fatal(&protocol.StatusError{
			Code:        protocol.ErrConnection,
			Media:       key,
			Causes:      []string{"media reconnect attempts exhausted"},
			Remediation: "check connectivity to the media server",
		}, "media:"+key.String())
		return
	}

	ep := h.epoch
	g := slot.gen
	slot.timer = h.clock.AfterFunc(d, func() {
		h.post(func() {
			if ep != h.epoch || slot.gen != g || !h.shouldReconnect {
				return
			}
			slot.timer = nil
			h.countReconnect("media:" + key.String())
			h.openMedia(key)
		})
	})
	h.logger.Info("media reconnect scheduled",
		log.String("media", key.String()),
		log.Duration("after", d))
}

func (h *Handler) countReconnect(channelName string) {
	h.metaMu.Lock()
	h.reconnects++
	h.metaMu.Unlock()
	reconnectsTotal.Add(h.ctx, 1, channelAttr(channelName))
}

func (h *Handler) onStreamState(ep uint64, update *protocol.StreamStateUpdate) {
	if ep != h.epoch {
		return
	}
	switch update.State {
	case protocol.StreamTerminated:
		h.shouldReconnect = false
		h.finish("stream terminated by platform")
	case protocol.StreamInterrupted:
		h.logger.Warn("platform reports stream interrupted", log.Int("reason", update.Reason))
	}
}

func (h *Handler) recordError(se *protocol.StatusError) {
	h.metaMu.Lock()
	h.lastErr = se.Error()
	h.metaMu.Unlock()
}

// fatal clears shouldReconnect, reports the error and tears the stream down.
func (h *Handler) fatal(se *protocol.StatusError, channelName string) {
	se.Identity = h.id
	if se.Channel == "" {
		se.Channel = channelName
	}
	h.logger.Error("fatal stream error",
		log.String("code", string(se.Code)),
		log.Int("status", se.Status),
		log.String("channel", se.Channel))
	h.recordError(se)
	h.shouldReconnect = false
	h.opts.Sink.OnError(se)
	h.finish(string(se.Code))
}

func (h *Handler) finish(reason string) {
	if h.State() == rtms.HandlerClosed {
		return
	}
	h.frameMu.Lock()
	h.stopped = true
	h.frameMu.Unlock()

	h.epoch++
	if h.sigTimer != nil {
		h.sigTimer.Stop()
		h.sigTimer = nil
	}
	h.closeMedia(false)
	if h.signaling != nil {
		_ = h.signaling.Close()
		h.signaling = nil
	}

	h.metaMu.Lock()
	h.stopReason = reason
	h.stoppedAt = h.clock.Now()
	h.metaMu.Unlock()
	h.setState(rtms.HandlerClosed)
	activeStreams.Add(context.Background(), -1)

	h.opts.Sink.OnStopped(h.Snapshot())
	h.cancel()
}

// deliverFrame runs on a media read loop.
func (h *Handler) deliverFrame(key rtms.MediaType, g uint64, f rtms.Frame) {
	h.frameMu.RLock()
	defer h.frameMu.RUnlock()

	slot := h.slots[key]
	if h.stopped || slot.live.Load() != g {
		framesDropped.Add(context.Background(), 1)
		return
	}

	gapFrom, hasGap := h.stats.record(f.Type, f.Timestamp, h.clock.Now())
	if hasGap && h.opts.GapFilling {
		cfg, _ := h.mediaConfig(f.Type)
		fillers := fillGap(h.id, f.Type, cfg, gapFrom, f.Timestamp)
		if len(fillers) > 0 {
			h.logger.Info("filled reconnect gap",
				log.String("media", f.Type.String()),
				log.Int("frames", len(fillers)),
				log.Int64("from", gapFrom),
				log.Int64("to", f.Timestamp))
			fillerFrames.Add(context.Background(), int64(len(fillers)))
		}
		for _, ff := range fillers {
			h.opts.Sink.OnFrame(ff)
		}
	}
	framesReceived.Add(context.Background(), 1, mediaAttr(f.Type))
	h.opts.Sink.OnFrame(f)
}

func (h *Handler) mediaConfig(t rtms.MediaType) (rtms.MediaTypeConfig, bool) {
	h.metaMu.Lock()
	defer h.metaMu.Unlock()
	cfg, ok := h.configs[t]
	return cfg, ok
}

// Snapshot returns the current metadata; safe from any goroutine.
func (h *Handler) Snapshot() rtms.StreamMetadata {
	h.metaMu.Lock()
	meta := rtms.StreamMetadata{
		Identity:     h.id,
		SessionID:    h.sessionID,
		State:        h.state,
		MediaTypes:   h.opts.MediaTypes,
		CreatedAt:    h.opts.CreatedAt,
		StoppedAt:    h.stoppedAt,
		Reconnects:   h.reconnects,
		StopReason:   h.stopReason,
		LastError:    h.lastErr,
		MediaConfigs: make(map[rtms.MediaType]rtms.MediaTypeConfig, len(h.configs)),
	}
	for k, v := range h.configs {
		meta.MediaConfigs[k] = v
	}
	h.metaMu.Unlock()

	meta.FirstPacket, meta.LastPacket, meta.FrameCounts = h.stats.snapshot()
	return meta
}
