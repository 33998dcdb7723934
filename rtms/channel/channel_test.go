package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/imtaco/rtms-ingest/internal/errors"
	"github.com/imtaco/rtms-ingest/internal/log"
	"github.com/imtaco/rtms-ingest/internal/websocket/wstest"
	"github.com/imtaco/rtms-ingest/rtms"
	"github.com/imtaco/rtms-ingest/rtms/protocol"
)

const waitFor = 2 * time.Second

type recorder struct {
	mu         sync.Mutex
	keepAlives []int64
	states     []protocol.StreamState
	frames     chan rtms.Frame
	closed     chan error
}

func newRecorder() *recorder {
	return &recorder{
		frames: make(chan rtms.Frame, 64),
		closed: make(chan error, 1),
	}
}

func (r *recorder) OnKeepAlive(ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keepAlives = append(r.keepAlives, ts)
}

func (r *recorder) OnStreamState(u *protocol.StreamStateUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, u.State)
}

func (r *recorder) OnSessionState(*protocol.SessionStateUpdate) {}

func (r *recorder) OnFrame(f rtms.Frame) {
	r.frames <- f
}

func (r *recorder) OnClosed(err error) {
	r.closed <- err
}

type ChannelTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	dialer *wstest.Dialer
	params Params
	events *recorder
}

func TestChannelSuite(t *testing.T) {
	suite.Run(t, new(ChannelTestSuite))
}

func (s *ChannelTestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Second)
	s.dialer = wstest.NewDialer()
	s.events = newRecorder()
	s.params = Params{
		Identity: rtms.Identity{MeetingUUID: "m1", StreamID: "s1"},
		Dialer:   s.dialer,
		Signer:   func(m, st string) string { return "sig:" + m + ":" + st },
		Logger:   log.NewNop(),
	}
}

func (s *ChannelTestSuite) TearDownTest() {
	s.cancel()
}

type openResult struct {
	resp *protocol.HandshakeResponse
	err  error
}

func (s *ChannelTestSuite) openSignaling(ctx context.Context, sig *Signaling) <-chan openResult {
	out := make(chan openResult, 1)
	go func() {
		resp, err := sig.Open(ctx, "wss://sig")
		out <- openResult{resp, err}
	}()
	return out
}

func (s *ChannelTestSuite) openMedia(m *Media) <-chan error {
	out := make(chan error, 1)
	go func() { out <- m.Open(s.ctx, "wss://media") }()
	return out
}

func (s *ChannelTestSuite) result(ch <-chan openResult) openResult {
	select {
	case r := <-ch:
		return r
	case <-time.After(waitFor):
		s.FailNow("open did not return")
		return openResult{}
	}
}

func (s *ChannelTestSuite) mediaResult(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(waitFor):
		s.FailNow("open did not return")
		return nil
	}
}

func (s *ChannelTestSuite) closedWith() error {
	select {
	case err := <-s.events.closed:
		return err
	case <-time.After(waitFor):
		s.FailNow("channel not closed")
		return nil
	}
}

func okSignaling() map[string]any {
	return map[string]any{
		"msg_type":     protocol.MsgSignalingHandshakeResp,
		"status_code":  protocol.StatusOK,
		"media_server": map[string]any{"server_urls": "wss://media"},
	}
}

func (s *ChannelTestSuite) readySignaling() (*Signaling, *wstest.Conn) {
	sig := NewSignaling(s.params, rtms.MediaAudio|rtms.MediaTranscript, s.events)
	res := s.openSignaling(s.ctx, sig)
	conn := s.dialer.Next(s.T())
	conn.Read(s.T())
	conn.Reply(s.T(), okSignaling())
	s.Require().NoError(s.result(res).err)
	return sig, conn
}

func (s *ChannelTestSuite) TestSignalingHandshake() {
	sig := NewSignaling(s.params, rtms.MediaAudio|rtms.MediaTranscript, s.events)
	s.Equal(rtms.StateConnecting, sig.State())
	res := s.openSignaling(s.ctx, sig)

	conn := s.dialer.Next(s.T())
	s.Equal("wss://sig", conn.URL)
	req := conn.Read(s.T())
	s.EqualValues(protocol.MsgSignalingHandshakeReq, req["msg_type"])
	s.EqualValues(protocol.ProtocolVersion, req["protocol_version"])
	s.Equal("m1", req["meeting_uuid"])
	s.Equal("s1", req["stream_id"])
	s.Equal("sig:m1:s1", req["signature"])
	s.EqualValues(rtms.MediaAudio|rtms.MediaTranscript, req["media_type"])
	s.EqualValues(1, req["sequence"])

	conn.Reply(s.T(), okSignaling())
	r := s.result(res)
	s.Require().NoError(r.err)
	s.Equal("wss://media", r.resp.MediaServer.ServerURLs.For(rtms.MediaAudio))
	s.Equal(rtms.StateReady, sig.State())
}

func (s *ChannelTestSuite) TestSignalingRejected() {
	sig := NewSignaling(s.params, rtms.MediaAudio, s.events)
	res := s.openSignaling(s.ctx, sig)
	conn := s.dialer.Next(s.T())
	conn.Read(s.T())
	conn.Reply(s.T(), map[string]any{
		"msg_type":    protocol.MsgSignalingHandshakeResp,
		"status_code": protocol.StatusInvalidCredentials,
		"reason":      "nope",
	})

	err := s.result(res).err
	se, ok := errors.As[*protocol.StatusError](err)
	s.Require().True(ok)
	s.Equal(protocol.ErrAuth, (*se).Code)
	s.Equal("signaling", (*se).Channel)
	s.Equal("s1", (*se).Identity.StreamID)
	s.Equal("nope", (*se).Reason)
	s.Eventually(conn.Closed, waitFor, 10*time.Millisecond)
	s.Equal(rtms.StateClosed, sig.State())
}

func (s *ChannelTestSuite) TestSignalingWithoutMediaServer() {
	sig := NewSignaling(s.params, rtms.MediaAudio, s.events)
	res := s.openSignaling(s.ctx, sig)
	conn := s.dialer.Next(s.T())
	conn.Read(s.T())
	conn.Reply(s.T(), map[string]any{
		"msg_type":    protocol.MsgSignalingHandshakeResp,
		"status_code": protocol.StatusOK,
	})

	err := s.result(res).err
	s.True(errors.Is(err, protocol.ErrAuth))
}

func (s *ChannelTestSuite) TestMalformedHandshakeResponse() {
	sig := NewSignaling(s.params, rtms.MediaAudio, s.events)
	res := s.openSignaling(s.ctx, sig)
	conn := s.dialer.Next(s.T())
	conn.Read(s.T())
	conn.Deliver([]byte("{garbage"))

	err := s.result(res).err
	s.True(errors.Is(err, protocol.ErrAuth))
	s.EqualValues(1, sig.Stats().DecodeErrors)
}

func (s *ChannelTestSuite) TestHandshakeTimeout() {
	ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()

	sig := NewSignaling(s.params, rtms.MediaAudio, s.events)
	res := s.openSignaling(ctx, sig)
	conn := s.dialer.Next(s.T())
	conn.Read(s.T())

	err := s.result(res).err
	s.True(errors.Is(err, protocol.ErrHandshakeTimeout))
	s.True(protocol.Classify(err).Retryable())
}

func (s *ChannelTestSuite) TestDialFailure() {
	s.dialer.FailNext(errors.PureNew("refused"))
	sig := NewSignaling(s.params, rtms.MediaAudio, s.events)

	_, err := sig.Open(s.ctx, "wss://sig")
	s.True(errors.Is(err, protocol.ErrConnection))
	s.Equal(rtms.StateClosed, sig.State())

	_, err = sig.Open(s.ctx, "wss://sig")
	s.True(errors.Is(err, protocol.ErrProtocol))
}

func (s *ChannelTestSuite) TestClientReady() {
	sig, conn := s.readySignaling()

	s.Require().NoError(sig.SendClientReady(s.ctx))
	ack := conn.Read(s.T())
	s.EqualValues(protocol.MsgClientReadyAck, ack["msg_type"])
	s.Equal("s1", ack["stream_id"])
	s.Equal(rtms.StateStreaming, sig.State())
}

func (s *ChannelTestSuite) TestKeepAliveAndStreamState() {
	sig, conn := s.readySignaling()

	conn.Reply(s.T(), map[string]any{"msg_type": protocol.MsgKeepAliveReq, "timestamp": 77})
	pong := conn.Read(s.T())
	s.EqualValues(protocol.MsgKeepAliveResp, pong["msg_type"])
	s.EqualValues(77, pong["timestamp"])
	s.Equal(1, conn.Urgent())

	conn.Reply(s.T(), map[string]any{"msg_type": protocol.MsgStreamStateUpdate, "state": protocol.StreamTerminated})
	s.Eventually(func() bool {
		s.events.mu.Lock()
		defer s.events.mu.Unlock()
		return len(s.events.states) == 1 && len(s.events.keepAlives) == 1
	}, waitFor, 10*time.Millisecond)
	s.Equal(protocol.StreamTerminated, s.events.states[0])
	s.EqualValues(1, sig.Stats().KeepAlives)
}

func (s *ChannelTestSuite) TestDropReportsError() {
	sig, conn := s.readySignaling()

	conn.Drop(errors.PureNew("reset"))
	err := s.closedWith()
	s.True(errors.Is(err, protocol.ErrConnection))
	s.Equal(rtms.StateClosed, sig.State())
}

func (s *ChannelTestSuite) TestLocalCloseReportsNil() {
	sig, _ := s.readySignaling()

	s.NoError(sig.Close())
	s.NoError(s.closedWith())
}

func (s *ChannelTestSuite) TestMediaHandshake() {
	m := NewMedia(s.params, rtms.MediaAudio, map[rtms.MediaType]rtms.MediaTypeConfig{
		rtms.MediaAudio: {Codec: 1, SampleRate: 8000, Channels: 1},
	}, s.events)
	s.Equal("media:audio", m.Name())
	res := s.openMedia(m)

	conn := s.dialer.Next(s.T())
	req := conn.Read(s.T())
	s.EqualValues(protocol.MsgDataHandshakeReq, req["msg_type"])
	s.EqualValues(rtms.MediaAudio, req["media_type"])
	params := req["media_params"].(map[string]any)
	s.EqualValues(8000, params["audio"].(map[string]any)["sample_rate"])
	s.NotContains(params, "video")

	conn.Reply(s.T(), map[string]any{
		"msg_type":     protocol.MsgDataHandshakeResp,
		"status_code":  protocol.StatusOK,
		"media_params": map[string]any{"audio": map[string]any{"codec": 1, "sample_rate": 16000, "channel": 1}},
	})
	s.Require().NoError(s.mediaResult(res))
	s.Equal(rtms.StateReady, m.State())

	cfg, ok := m.Config(rtms.MediaAudio)
	s.True(ok)
	s.Equal(16000, cfg.SampleRate)
	s.Len(m.Configs(), 1)

	m.MarkStreaming()
	s.Equal(rtms.StateStreaming, m.State())
}

func (s *ChannelTestSuite) TestMediaFramesInOrder() {
	m := NewMedia(s.params, rtms.MediaTranscript, nil, s.events)
	res := s.openMedia(m)
	conn := s.dialer.Next(s.T())
	conn.Read(s.T())
	conn.Reply(s.T(), map[string]any{"msg_type": protocol.MsgDataHandshakeResp, "status_code": protocol.StatusOK})
	s.Require().NoError(s.mediaResult(res))

	cfg, ok := m.Config(rtms.MediaTranscript)
	s.True(ok)
	s.Equal(protocol.DefaultMediaConfigs[rtms.MediaTranscript], cfg)

	for i := 1; i <= 3; i++ {
		conn.Reply(s.T(), map[string]any{
			"msg_type": protocol.MsgTranscript,
			"content":  map[string]any{"user_id": i, "data": "t", "timestamp": i},
		})
	}
	// not carried on this channel
	conn.Reply(s.T(), map[string]any{
		"msg_type": protocol.MsgChat,
		"content":  map[string]any{"data": "x"},
	})
	conn.Deliver([]byte("not json"))

	for i := 1; i <= 3; i++ {
		select {
		case f := <-s.events.frames:
			s.EqualValues(i, f.Timestamp)
			s.Equal(rtms.MediaTranscript, f.Type)
			s.Equal("s1", f.Identity.StreamID)
		case <-time.After(waitFor):
			s.FailNow("missing frame")
		}
	}
	s.Eventually(func() bool { return m.Stats().DecodeErrors == 1 }, waitFor, 10*time.Millisecond)
	s.EqualValues(3, m.Stats().Frames)
	s.Empty(s.events.frames)
}

func (s *ChannelTestSuite) TestMediaDropsFramesBeforeHandshake() {
	m := NewMedia(s.params, rtms.MediaTranscript, nil, s.events)
	res := s.openMedia(m)
	conn := s.dialer.Next(s.T())
	conn.Read(s.T())

	early := map[string]any{
		"msg_type": protocol.MsgTranscript,
		"content":  map[string]any{"user_id": 1, "data": "early", "timestamp": 1},
	}
	conn.Reply(s.T(), early)
	conn.Reply(s.T(), map[string]any{"msg_type": protocol.MsgDataHandshakeResp, "status_code": protocol.StatusOK})
	// queued right behind the response on the same read loop
	conn.Reply(s.T(), map[string]any{
		"msg_type": protocol.MsgTranscript,
		"content":  map[string]any{"user_id": 1, "data": "late", "timestamp": 2},
	})
	s.Require().NoError(s.mediaResult(res))

	select {
	case f := <-s.events.frames:
		s.Equal("late", f.Text)
	case <-time.After(waitFor):
		s.FailNow("missing frame")
	}
	s.Empty(s.events.frames)
	s.EqualValues(1, m.Stats().Frames)
}

func (s *ChannelTestSuite) TestUnifiedMediaCarriesEveryType() {
	m := NewMedia(s.params, rtms.MediaAll, nil, s.events)
	res := s.openMedia(m)
	conn := s.dialer.Next(s.T())
	req := conn.Read(s.T())
	s.EqualValues(rtms.MediaAll, req["media_type"])
	params := req["media_params"].(map[string]any)
	s.Len(params, 5)

	conn.Reply(s.T(), map[string]any{"msg_type": protocol.MsgDataHandshakeResp, "status_code": protocol.StatusOK})
	s.Require().NoError(s.mediaResult(res))

	conn.Reply(s.T(), map[string]any{
		"msg_type": protocol.MsgChat,
		"content":  map[string]any{"data": "hi"},
	})
	select {
	case f := <-s.events.frames:
		s.Equal(rtms.MediaChat, f.Type)
		s.Equal("hi", f.Text)
	case <-time.After(waitFor):
		s.FailNow("missing frame")
	}
}

func (s *ChannelTestSuite) TestMediaRejected() {
	m := NewMedia(s.params, rtms.MediaVideo, nil, s.events)
	res := s.openMedia(m)
	conn := s.dialer.Next(s.T())
	conn.Read(s.T())
	conn.Reply(s.T(), map[string]any{
		"msg_type":    protocol.MsgDataHandshakeResp,
		"status_code": protocol.StatusDuplicateStream,
	})

	err := s.mediaResult(res)
	se, ok := errors.As[*protocol.StatusError](err)
	s.Require().True(ok)
	s.Equal(protocol.ErrCapacity, (*se).Code)
	s.Equal("media:video", (*se).Channel)
}
