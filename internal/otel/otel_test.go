package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/imtaco/rtms-ingest/internal/log"
)

type OtelTestSuite struct {
	suite.Suite
}

func TestOtelSuite(t *testing.T) {
	suite.Run(t, new(OtelTestSuite))
}

func (s *OtelTestSuite) TestInitDisabled() {
	v := viper.New()
	Setup(v, "otel")
	cfg := Config{}
	s.Require().NoError(v.UnmarshalKey("otel", &cfg))
	s.Equal("rtms-ingest", cfg.ServiceName)
	s.False(cfg.MetricsEnabled)

	shutdown, err := Init(context.Background(), &cfg, log.NewNop())
	s.Require().NoError(err)
	s.NoError(shutdown(context.Background()))
}

func (s *OtelTestSuite) TestFactoryNames() {
	f := NewFactory("test", PrefixIngest)
	s.Equal("rtms_ingest.frames.received", f.name("frames.received"))
	s.Equal("x", NewFactory("test", "").name("x"))
}

func (s *OtelTestSuite) TestSpanHelpers() {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := StartSpan(context.Background(), tp.Tracer("test"), "op")
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()

	spans := exporter.GetSpans()
	s.Require().Len(spans, 1)
	s.Equal("op", spans[0].Name)
	s.Equal(codes.Error, spans[0].Status.Code)
	s.Len(spans[0].Events, 1)
}

func (s *OtelTestSuite) TestSampler() {
	s.Contains(sampler(1).Description(), "AlwaysOnSampler")
	s.Contains(sampler(0).Description(), "AlwaysOffSampler")
	s.Contains(sampler(0.5).Description(), "TraceIDRatioBased")
}
