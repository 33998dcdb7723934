package stream

import (
	"github.com/imtaco/rtms-ingest/internal/log"
	"github.com/imtaco/rtms-ingest/rtms"
	"github.com/imtaco/rtms-ingest/rtms/protocol"
)

// signalingEvents binds a signaling channel to the epoch that opened it.
type signalingEvents struct {
	h     *Handler
	epoch uint64
}

func (e *signalingEvents) OnKeepAlive(ts int64) {
	e.h.logger.Debug("signaling keep-alive", log.Int64("timestamp", ts))
}

func (e *signalingEvents) OnStreamState(update *protocol.StreamStateUpdate) {
	e.h.post(func() { e.h.onStreamState(e.epoch, update) })
}

func (e *signalingEvents) OnSessionState(update *protocol.SessionStateUpdate) {
	e.h.logger.Debug("session state update",
		log.String("sessionId", update.SessionID),
		log.Int("state", update.State))
}

func (e *signalingEvents) OnClosed(err error) {
	e.h.post(func() { e.h.onSignalingClosed(e.epoch, err) })
}

// mediaEvents binds a media channel to its slot generation.
type mediaEvents struct {
	h   *Handler
	key rtms.MediaType
	gen uint64
}

func (e *mediaEvents) OnFrame(frame rtms.Frame) {
	e.h.deliverFrame(e.key, e.gen, frame)
}

func (e *mediaEvents) OnKeepAlive(ts int64) {
	e.h.logger.Debug("media keep-alive",
		log.String("media", e.key.String()),
		log.Int64("timestamp", ts))
}

func (e *mediaEvents) OnClosed(err error) {
	e.h.post(func() { e.h.onMediaClosed(e.key, e.gen, err) })
}
