package main

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/imtaco/rtms-ingest/internal/config"
	"github.com/imtaco/rtms-ingest/internal/httputil"
	"github.com/imtaco/rtms-ingest/internal/log"
	"github.com/imtaco/rtms-ingest/internal/otel"
	"github.com/imtaco/rtms-ingest/internal/redis"
	"github.com/imtaco/rtms-ingest/internal/workflow"
	"github.com/imtaco/rtms-ingest/rtms/ingest"
	"github.com/imtaco/rtms-ingest/rtms/sink"
	"github.com/imtaco/rtms-ingest/rtms/transport"
)

type Config struct {
	App   config.App      `mapstructure:"app"`
	HTTP  httputil.Config `mapstructure:"http"`
	Redis redis.Config    `mapstructure:"redis"`
	Otel  otel.Config     `mapstructure:"otel"`
	RTMS  ingest.Config   `mapstructure:"rtms"`
	Sink  sink.Config     `mapstructure:"sink"`

	// WebhookSecret signs platform notifications. Falls back to the client secret.
	WebhookSecret string `mapstructure:"webhook_secret"`
}

func loadConfig() (*Config, error) {
	return config.Load(&Config{}, func(v *viper.Viper) {
		v.SetDefault("webhook_secret", "")

		config.Setup(v, "app")
		redis.Setup(v, "redis")
		otel.Setup(v, "otel")
		httputil.Setup(v, "http")
		ingest.Setup(v, "rtms")
		sink.Setup(v, "sink")
	})
}

func main() {
	config, err := loadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", err)
	}

	logger, err := log.NewLogger(config.App.LogConfigFile)
	if err != nil {
		log.Fatal("Failed to create logger", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	otelShutdown, err := otel.Init(ctx, &config.Otel, logger)
	if err != nil {
		logger.Fatal("Failed to initialize OTEL provider", log.Error(err))
	}

	logger.Info("Starting RTMS ingestion...")

	manager := ingest.New(logger.Module("Ingest"))
	if err := manager.Init(config.RTMS); err != nil {
		logger.Fatal("Failed to initialize ingestion", log.Error(err))
	}

	var (
		redisClient *goredis.Client
		publisher   *sink.Publisher
	)
	if config.Sink.Enabled {
		redisClient = redis.NewClient(&config.Redis)
		if err := redis.Ping(ctx, redisClient); err != nil {
			logger.Fatal("Failed to connect to Redis", log.Error(err))
		}
		publisher, err = sink.NewPublisher(redisClient, config.Sink, logger.Module("Sink"))
		if err != nil {
			logger.Fatal("Failed to create event publisher", log.Error(err))
		}
		publisher.Attach(manager)
	}

	secret := config.WebhookSecret
	if secret == "" {
		secret = config.RTMS.ClientSecret
	}
	router := transport.NewRouter(manager, secret, logger.Module("Webhook"))
	server := httputil.NewServer(&config.HTTP, router.Handler())

	go func() {
		logger.Info("Starting webhook server", log.String("addr", config.HTTP.Addr))
		if err := server.Listen(); err != nil {
			logger.Fatal("Failed to start webhook server", log.Error(err))
		}
	}()

	cleanup := func(ctx context.Context) {
		_ = server.Shutdown(ctx)

		if err := manager.Stop(ctx); err != nil {
			logger.Error("Error stopping ingestion", log.Error(err))
		}
		if publisher != nil {
			publisher.Close()
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Error("Error closing Redis client", log.Error(err))
			}
		}
		if err := otelShutdown(ctx); err != nil {
			logger.Error("Failed to shutdown OTEL", log.Error(err))
		}
	}
	workflow.WaitGracefulShutdown(ctx, logger.Module("CleanUp"), cleanup, config.App.ShutdownTimeout)
}
