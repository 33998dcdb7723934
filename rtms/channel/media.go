package channel

import (
	"context"
	"sync"

	"github.com/imtaco/rtms-ingest/internal/log"
	"github.com/imtaco/rtms-ingest/rtms"
	"github.com/imtaco/rtms-ingest/rtms/protocol"
)

// MediaEvents receives callbacks from a media read loop. OnFrame is called in
// socket order and must not block.
type MediaEvents interface {
	OnFrame(frame rtms.Frame)
	OnKeepAlive(ts int64)
	OnClosed(err error)
}

// Media is one data connection. It normally carries a single media type; in
// unified mode it carries every requested type.
type Media struct {
	base
	media    rtms.MediaType
	requests map[rtms.MediaType]rtms.MediaTypeConfig
	events   MediaEvents

	cfgMu   sync.RWMutex
	configs map[rtms.MediaType]rtms.MediaTypeConfig
}

func NewMedia(
	params Params,
	media rtms.MediaType,
	requests map[rtms.MediaType]rtms.MediaTypeConfig,
	events MediaEvents,
) *Media {
	if events == nil {
		panic("events is required")
	}
	if media == 0 {
		panic("media type is required")
	}
	m := &Media{
		media:    media,
		requests: requests,
		events:   events,
	}
	m.base.init("media:"+media.String(), params)
	return m
}

// Open performs the data handshake on url.
func (m *Media) Open(ctx context.Context, url string) error {
	id := m.params.Identity
	req := &protocol.DataHandshakeRequest{
		MsgType:           protocol.MsgDataHandshakeReq,
		ProtocolVersion:   protocol.ProtocolVersion,
		MeetingUUID:       id.MeetingUUID,
		StreamID:          id.StreamID,
		Sequence:          m.nextSeq(),
		Signature:         m.params.Signer(id.MeetingUUID, id.StreamID),
		MediaType:         m.media,
		PayloadEncryption: m.params.PayloadEncryption,
	}
	for _, t := range m.media.Split() {
		cfg, ok := m.requests[t]
		if !ok {
			cfg = protocol.DefaultMediaConfigs[t]
		}
		req.MediaParams.Set(t, cfg)
	}

	m.logger.Info("open media", log.String("url", url))
	resp, err := m.handshake(ctx, url, m, req)
	if err != nil {
		handshakes.Add(ctx, 1, failedAttr)
		return err
	}

	configs := make(map[rtms.MediaType]rtms.MediaTypeConfig, len(m.media.Split()))
	for _, t := range m.media.Split() {
		if cfg := resp.MediaParams.Get(t); cfg != nil {
			configs[t] = *cfg
		} else if cfg := req.MediaParams.Get(t); cfg != nil {
			configs[t] = *cfg
		}
	}
	m.cfgMu.Lock()
	m.configs = configs
	m.cfgMu.Unlock()

	m.transition(rtms.StateReady)
	handshakes.Add(ctx, 1, okAttr)
	m.logger.Info("media ready")
	return nil
}

// MarkStreaming records that the platform was told to start data flow.
func (m *Media) MarkStreaming() {
	m.transition(rtms.StateStreaming)
}

// Config returns the negotiated parameters for t.
func (m *Media) Config(t rtms.MediaType) (rtms.MediaTypeConfig, bool) {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	cfg, ok := m.configs[t]
	return cfg, ok
}

func (m *Media) Configs() map[rtms.MediaType]rtms.MediaTypeConfig {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	out := make(map[rtms.MediaType]rtms.MediaTypeConfig, len(m.configs))
	for k, v := range m.configs {
		out[k] = v
	}
	return out
}

func (m *Media) OnMessage(data []byte) {
	msg := m.decode(data)
	if msg == nil {
		return
	}

	switch v := msg.(type) {
	case *protocol.MediaFrame:
		if !m.authenticated() {
			m.logger.Debug("drop frame before handshake", log.String("media", v.Media.String()))
			return
		}
		if !m.media.Has(v.Media) {
			m.logger.Debug("ignore frame for media not carried", log.String("media", v.Media.String()))
			return
		}
		m.counters.frames.Add(1)
		m.events.OnFrame(rtms.Frame{
			Type:      v.Media,
			Identity:  m.params.Identity,
			UserID:    v.UserID,
			UserName:  v.UserName,
			Timestamp: v.Timestamp,
			Data:      v.Data,
			Text:      v.Text,
		})
	case *protocol.KeepAliveRequest:
		m.answerKeepAlive(v.Timestamp)
		m.events.OnKeepAlive(v.Timestamp)
	case *protocol.HandshakeResponse:
		if !m.deliverHandshake(v, nil) {
			m.logger.Warn("ignore unexpected handshake response", log.Int("status", v.StatusCode))
		}
	case *protocol.StreamStateUpdate, *protocol.SessionStateUpdate:
		m.logger.Debug("ignore state update on media", log.Int("msgType", int(v.Type())))
	case *protocol.Unknown:
		m.logger.Debug("ignore unknown message", log.Int("msgType", int(v.MsgType)))
	}
}

func (m *Media) OnClose(err error) {
	m.events.OnClosed(m.closedErr(err))
}
