package sink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/imtaco/rtms-ingest/internal/log"
	"github.com/imtaco/rtms-ingest/rtms"
	"github.com/imtaco/rtms-ingest/rtms/ingest"
	"github.com/imtaco/rtms-ingest/rtms/protocol"
)

type fakeSubscriber struct {
	mu   sync.Mutex
	subs map[ingest.Kind]func(ingest.Event)
}

func (f *fakeSubscriber) On(kind ingest.Kind, fn func(ingest.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[ingest.Kind]func(ingest.Event))
	}
	f.subs[kind] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, kind)
	}
}

func (f *fakeSubscriber) emit(ev ingest.Event) {
	f.mu.Lock()
	fn := f.subs[ev.Kind()]
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (f *fakeSubscriber) kinds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type PublisherTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	ctx    context.Context
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherTestSuite))
}

func (s *PublisherTestSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.ctx = context.Background()
}

func (s *PublisherTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func (s *PublisherTestSuite) publisher(cfg Config) *Publisher {
	if cfg.Stream == "" {
		cfg.Stream = "rtms:events"
	}
	p, err := NewPublisher(s.client, cfg, log.NewNop())
	s.Require().NoError(err)
	s.T().Cleanup(p.Close)
	return p
}

func (s *PublisherTestSuite) entries() []redis.XMessage {
	msgs, err := s.client.XRange(s.ctx, "rtms:events", "-", "+").Result()
	s.Require().NoError(err)
	return msgs
}

func (s *PublisherTestSuite) TestNewPublisherValidation() {
	_, err := NewPublisher(nil, Config{Stream: "x"}, log.NewNop())
	s.ErrorContains(err, "redis client is required")

	_, err = NewPublisher(s.client, Config{}, log.NewNop())
	s.ErrorContains(err, "stream name is required")

	_, err = NewPublisher(s.client, Config{Stream: "x"}, nil)
	s.ErrorContains(err, "logger is required")
}

func (s *PublisherTestSuite) TestPublishTranscript() {
	p := s.publisher(Config{})
	id := rtms.Identity{MeetingUUID: "m1", StreamID: "s1"}

	entryID, err := p.Publish(s.ctx, ingest.TranscriptEvent{TextPayload: ingest.TextPayload{
		Text:      "hello",
		UserID:    "7",
		UserName:  "Ada",
		Timestamp: 1000,
		Identity:  id,
	}})
	s.Require().NoError(err)
	s.NotEmpty(entryID)

	msgs := s.entries()
	s.Require().Len(msgs, 1)
	v := msgs[0].Values
	s.Equal("transcript", v["kind"])
	s.Equal("m1", v["meeting_uuid"])
	s.Equal("s1", v["stream_id"])
	s.Equal("7", v["user_id"])
	s.Equal("Ada", v["user_name"])
	s.Equal("1000", v["timestamp"])
	s.Equal("hello", v["text"])
	s.NotEmpty(v["event_id"])
}

func (s *PublisherTestSuite) TestPublishLifecycle() {
	p := s.publisher(Config{})
	meta := rtms.StreamMetadata{
		Identity:   rtms.Identity{MeetingUUID: "m1", StreamID: "s1"},
		SessionID:  "sess",
		MediaTypes: rtms.MediaAudio | rtms.MediaTranscript,
		StopReason: "meeting.rtms_stopped",
		Reconnects: 2,
	}

	_, err := p.Publish(s.ctx, ingest.StartedEvent{Metadata: meta})
	s.Require().NoError(err)
	_, err = p.Publish(s.ctx, ingest.StoppedEvent{Metadata: meta})
	s.Require().NoError(err)
	_, err = p.Publish(s.ctx, ingest.ErrorEvent{Err: &protocol.StatusError{
		Code:     protocol.ErrAuth,
		Status:   protocol.StatusInvalidSignature,
		Channel:  "signaling",
		Identity: meta.Identity,
	}})
	s.Require().NoError(err)

	msgs := s.entries()
	s.Require().Len(msgs, 3)
	s.Equal("started", msgs[0].Values["kind"])
	s.Equal("audio|transcript", msgs[0].Values["media"])
	s.Equal("sess", msgs[0].Values["session_id"])
	s.Equal("stopped", msgs[1].Values["kind"])
	s.Equal("meeting.rtms_stopped", msgs[1].Values["reason"])
	s.Equal("2", msgs[1].Values["reconnects"])
	s.Equal("error", msgs[2].Values["kind"])
	s.Equal(string(protocol.ErrAuth), msgs[2].Values["code"])
	s.Equal("signaling", msgs[2].Values["channel"])
}

func (s *PublisherTestSuite) TestPublishMediaOmitsPayload() {
	p := s.publisher(Config{})
	_, err := p.Publish(s.ctx, ingest.AudioEvent{BinaryPayload: ingest.BinaryPayload{
		Data:      make([]byte, 640),
		UserID:    "1",
		Timestamp: 20,
		Identity:  rtms.Identity{MeetingUUID: "m1", StreamID: "s1"},
		Synthetic: true,
	}})
	s.Require().NoError(err)

	v := s.entries()[0].Values
	s.Equal("audio", v["kind"])
	s.Equal("640", v["bytes"])
	s.Equal("1", v["synthetic"])
	s.NotContains(v, "data")
}

func (s *PublisherTestSuite) TestPublishUnsupported() {
	p := s.publisher(Config{})
	_, err := p.Publish(s.ctx, ingest.ErrorEvent{})
	s.Error(err)
	s.Empty(s.entries())
}

func (s *PublisherTestSuite) TestMaxLenTrimsStream() {
	p := s.publisher(Config{MaxLen: 2})
	for i := 0; i < 5; i++ {
		_, err := p.Publish(s.ctx, ingest.ChatEvent{TextPayload: ingest.TextPayload{Text: "hi"}})
		s.Require().NoError(err)
	}
	s.LessOrEqual(len(s.entries()), 5)
	s.NotEmpty(s.entries())
}

func (s *PublisherTestSuite) TestAttachForwardsEvents() {
	sub := &fakeSubscriber{}
	p := s.publisher(Config{})
	p.Attach(sub)
	s.Equal(5, sub.kinds())

	sub.emit(ingest.ChatEvent{TextPayload: ingest.TextPayload{Text: "hi"}})
	sub.emit(ingest.AudioEvent{})

	msgs := s.entries()
	s.Require().Len(msgs, 1)
	s.Equal("chat", msgs[0].Values["kind"])

	p.Close()
	s.Zero(sub.kinds())
}

func (s *PublisherTestSuite) TestAttachIncludeMedia() {
	sub := &fakeSubscriber{}
	p := s.publisher(Config{IncludeMedia: true})
	p.Attach(sub)
	s.Equal(8, sub.kinds())
}

func (s *PublisherTestSuite) TestPublishGivesUpWhenRedisDown() {
	p := s.publisher(Config{WriteTimeout: 200 * time.Millisecond})
	s.mr.Close()

	_, err := p.Publish(s.ctx, ingest.ChatEvent{TextPayload: ingest.TextPayload{Text: "hi"}})
	s.Error(err)
}

func (s *PublisherTestSuite) TestPublishDoesNotRetryServerErrors() {
	s.Require().NoError(s.mr.Set("rtms:events", "not a stream"))
	p := s.publisher(Config{WriteTimeout: time.Minute})

	start := time.Now()
	_, err := p.Publish(s.ctx, ingest.ChatEvent{TextPayload: ingest.TextPayload{Text: "hi"}})
	s.ErrorContains(err, "WRONGTYPE")
	s.Less(time.Since(start), 5*time.Second)
}
