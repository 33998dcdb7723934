package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"

	"github.com/imtaco/rtms-ingest/internal/log"
	intotel "github.com/imtaco/rtms-ingest/internal/otel"
	"github.com/imtaco/rtms-ingest/internal/retry"
	"github.com/imtaco/rtms-ingest/rtms/ingest"
)

type Config struct {
	Enabled      bool          `mapstructure:"enabled"`
	Stream       string        `mapstructure:"stream"`
	MaxLen       int64         `mapstructure:"max_len"`
	IncludeMedia bool          `mapstructure:"include_media"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("enabled"), false)
	v.SetDefault(p("stream"), "rtms:events")
	v.SetDefault(p("max_len"), 100000)
	v.SetDefault(p("include_media"), false)
	v.SetDefault(p("write_timeout"), "5s")
}

// Subscriber is the part of the manager the publisher attaches to.
type Subscriber interface {
	On(kind ingest.Kind, fn func(ingest.Event)) func()
}

// Publisher appends ingestion events to a Redis stream. Text and lifecycle
// events carry their payload; media events only carry frame metadata.
type Publisher struct {
	client *redis.Client
	cfg    Config
	retry  retry.Retry
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	detach []func()
}

func NewPublisher(client *redis.Client, cfg Config, logger *log.Logger) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Stream == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		client: client,
		cfg:    cfg,
		retry:  retry.New(logger, 50*time.Millisecond, time.Second, cfg.WriteTimeout),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Attach subscribes to every kind the publisher forwards.
func (p *Publisher) Attach(sub Subscriber) {
	kinds := []ingest.Kind{
		ingest.KindTranscript, ingest.KindChat,
		ingest.KindStarted, ingest.KindStopped, ingest.KindError,
	}
	if p.cfg.IncludeMedia {
		kinds = append(kinds, ingest.KindAudio, ingest.KindVideo, ingest.KindShareScreen)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, kind := range kinds {
		p.detach = append(p.detach, sub.On(kind, p.handle))
	}
}

func (p *Publisher) handle(ev ingest.Event) {
	if _, err := p.Publish(p.ctx, ev); err != nil {
		p.logger.Error("failed to publish event",
			log.String("kind", string(ev.Kind())),
			log.Error(err))
	}
}

// Publish writes one event and returns the stream entry id.
func (p *Publisher) Publish(ctx context.Context, ev ingest.Event) (_ string, err error) {
	ctx, span := intotel.StartSpan(ctx, tracer, "sink.Publish",
		attribute.String("rtms.event.kind", string(ev.Kind())),
		attribute.String("redis.stream", p.cfg.Stream))
	defer func() {
		intotel.RecordError(span, err)
		span.End()
	}()

	values := encode(ev)
	if values == nil {
		return "", fmt.Errorf("unsupported event %T", ev)
	}

	var id string
	err = p.retry.Do(ctx, func() error {
		args := &redis.XAddArgs{
			Stream: p.cfg.Stream,
			Values: values,
		}
		if p.cfg.MaxLen > 0 {
			args.MaxLen = p.cfg.MaxLen
			args.Approx = true
		}
		var err error
		id, err = p.client.XAdd(ctx, args).Result()
		// server replies such as WRONGTYPE will not heal on retry
		var replyErr redis.Error
		if errors.As(err, &replyErr) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		eventsFailed.Add(ctx, 1)
		return "", fmt.Errorf("failed to add event to stream: %w", err)
	}

	eventsPublished.Add(ctx, 1)
	p.logger.Debug("added event to stream",
		log.String("stream", p.cfg.Stream),
		log.String("kind", string(ev.Kind())),
		log.String("id", id))
	return id, nil
}

// Close detaches from the manager and aborts pending retries.
func (p *Publisher) Close() {
	p.mu.Lock()
	detach := p.detach
	p.detach = nil
	p.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	p.cancel()
}

func encode(ev ingest.Event) map[string]any {
	values := map[string]any{
		"event_id": uuid.New().String(),
		"kind":     string(ev.Kind()),
	}

	switch e := ev.(type) {
	case ingest.TranscriptEvent:
		addText(values, e.TextPayload)
	case ingest.ChatEvent:
		addText(values, e.TextPayload)
	case ingest.AudioEvent:
		addBinary(values, e.BinaryPayload)
	case ingest.VideoEvent:
		addBinary(values, e.BinaryPayload)
	case ingest.ShareScreenEvent:
		addBinary(values, e.BinaryPayload)
	case ingest.StartedEvent:
		addMeta(values, e.Metadata.Identity.MeetingUUID, e.Metadata.Identity.StreamID)
		values["session_id"] = e.Metadata.SessionID
		values["media"] = e.Metadata.MediaTypes.String()
	case ingest.StoppedEvent:
		addMeta(values, e.Metadata.Identity.MeetingUUID, e.Metadata.Identity.StreamID)
		values["session_id"] = e.Metadata.SessionID
		values["reason"] = e.Metadata.StopReason
		values["reconnects"] = e.Metadata.Reconnects
	case ingest.ErrorEvent:
		if e.Err == nil {
			return nil
		}
		addMeta(values, e.Err.Identity.MeetingUUID, e.Err.Identity.StreamID)
		values["code"] = string(e.Err.Code)
		values["status"] = e.Err.Status
		values["message"] = e.Err.Error()
		if e.Err.Channel != "" {
			values["channel"] = e.Err.Channel
		}
	default:
		return nil
	}
	return values
}

func addMeta(values map[string]any, meetingUUID, streamID string) {
	values["meeting_uuid"] = meetingUUID
	values["stream_id"] = streamID
}

func addText(values map[string]any, t ingest.TextPayload) {
	addMeta(values, t.Identity.MeetingUUID, t.Identity.StreamID)
	values["user_id"] = t.UserID
	values["user_name"] = t.UserName
	values["timestamp"] = strconv.FormatInt(t.Timestamp, 10)
	values["text"] = t.Text
}

func addBinary(values map[string]any, b ingest.BinaryPayload) {
	addMeta(values, b.Identity.MeetingUUID, b.Identity.StreamID)
	values["user_id"] = b.UserID
	values["timestamp"] = strconv.FormatInt(b.Timestamp, 10)
	values["bytes"] = len(b.Data)
	values["synthetic"] = b.Synthetic
}
