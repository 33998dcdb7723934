package channel

import (
	"context"

	"github.com/imtaco/rtms-ingest/internal/errors"
	"github.com/imtaco/rtms-ingest/internal/log"
	"github.com/imtaco/rtms-ingest/rtms"
	"github.com/imtaco/rtms-ingest/rtms/protocol"
)

// SignalingEvents receives callbacks from the signaling read loop.
// Implementations must not block.
type SignalingEvents interface {
	OnKeepAlive(ts int64)
	OnStreamState(update *protocol.StreamStateUpdate)
	OnSessionState(update *protocol.SessionStateUpdate)
	// OnClosed reports a dropped socket; nil after a local Close.
	OnClosed(err error)
}

// Signaling is the control connection of one stream.
type Signaling struct {
	base
	media  rtms.MediaType
	events SignalingEvents
}

func NewSignaling(params Params, media rtms.MediaType, events SignalingEvents) *Signaling {
	if events == nil {
		panic("events is required")
	}
	s := &Signaling{
		media:  media,
		events: events,
	}
	s.base.init("signaling", params)
	return s
}

// Open performs the signaling handshake and returns the data endpoints.
func (s *Signaling) Open(ctx context.Context, url string) (*protocol.HandshakeResponse, error) {
	id := s.params.Identity
	req := &protocol.SignalingHandshakeRequest{
		MsgType:           protocol.MsgSignalingHandshakeReq,
		ProtocolVersion:   protocol.ProtocolVersion,
		MeetingUUID:       id.MeetingUUID,
		StreamID:          id.StreamID,
		Sequence:          s.nextSeq(),
		Signature:         s.params.Signer(id.MeetingUUID, id.StreamID),
		MediaType:         s.media,
		PayloadEncryption: s.params.PayloadEncryption,
	}

	s.logger.Info("open signaling", log.String("url", url), log.String("media", s.media.String()))
	resp, err := s.handshake(ctx, url, s, req)
	if err != nil {
		handshakes.Add(ctx, 1, failedAttr)
		return nil, err
	}

	if resp.MediaServer == nil || resp.MediaServer.ServerURLs.Empty() {
		handshakes.Add(ctx, 1, failedAttr)
		s.abort()
		return nil, &protocol.StatusError{
			Code:        protocol.ErrAuth,
			Status:      resp.StatusCode,
			Reason:      resp.Reason,
			Causes:      []string{"handshake response carries no media server address"},
			Remediation: "verify the signaling url and credentials of the start notification",
			Channel:     s.name,
			Identity:    id,
			Err:         errors.New(protocol.ErrAuth, "missing media_server"),
		}
	}

	s.transition(rtms.StateReady)
	handshakes.Add(ctx, 1, okAttr)
	s.logger.Info("signaling ready")
	return resp, nil
}

// SendClientReady tells the platform every data channel is ready; data only
// flows after this.
func (s *Signaling) SendClientReady(ctx context.Context) error {
	ack := &protocol.ClientReadyAck{
		MsgType:  protocol.MsgClientReadyAck,
		StreamID: s.params.Identity.StreamID,
	}
	if err := s.send(ctx, ack); err != nil {
		return err
	}
	s.transition(rtms.StateStreaming)
	return nil
}

func (s *Signaling) OnMessage(data []byte) {
	msg := s.decode(data)
	if msg == nil {
		return
	}

	switch m := msg.(type) {
	case *protocol.HandshakeResponse:
		if !s.deliverHandshake(m, nil) {
			s.logger.Warn("ignore unexpected handshake response", log.Int("status", m.StatusCode))
		}
	case *protocol.KeepAliveRequest:
		s.answerKeepAlive(m.Timestamp)
		s.events.OnKeepAlive(m.Timestamp)
	case *protocol.StreamStateUpdate:
		s.logger.Info("stream state update",
			log.Int("state", int(m.State)),
			log.Int("reason", m.Reason))
		s.events.OnStreamState(m)
	case *protocol.SessionStateUpdate:
		s.events.OnSessionState(m)
	case *protocol.MediaFrame:
		s.logger.Debug("ignore media frame on signaling", log.Int("msgType", int(m.MsgType)))
	case *protocol.Unknown:
		s.logger.Debug("ignore unknown message", log.Int("msgType", int(m.MsgType)))
	}
}

func (s *Signaling) OnClose(err error) {
	s.events.OnClosed(s.closedErr(err))
}
