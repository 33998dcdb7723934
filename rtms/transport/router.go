package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/imtaco/rtms-ingest/internal/cryptoutil"
	"github.com/imtaco/rtms-ingest/internal/errors"
	"github.com/imtaco/rtms-ingest/internal/log"
	"github.com/imtaco/rtms-ingest/internal/validation"
	"github.com/imtaco/rtms-ingest/rtms"
	"github.com/imtaco/rtms-ingest/rtms/ingest"
	"github.com/imtaco/rtms-ingest/rtms/protocol"
	"github.com/imtaco/rtms-ingest/rtms/registry"
)

const (
	headerSignature = "x-zm-signature"
	headerTimestamp = "x-zm-request-timestamp"
)

//go:generate mockgen -source=router.go -destination=mocks/ingestor.go -package=mocks Ingestor

// Ingestor is the part of the ingestion manager exposed over HTTP.
type Ingestor interface {
	HandleEvent(ctx context.Context, name string, n ingest.Notification) error
	ActiveStreams() []rtms.StreamMetadata
	MetadataByStreamID(streamID string) (rtms.StreamMetadata, bool)
}

// Router receives platform notifications and serves stream metadata.
type Router struct {
	ingestor Ingestor
	secret   string
	engine   *gin.Engine
	logger   *log.Logger
}

// NewRouter builds the HTTP surface. An empty secret disables signature
// checks and endpoint validation.
func NewRouter(ingestor Ingestor, secret string, logger *log.Logger) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("rtms-ingest"))

	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))

	r := &Router{
		ingestor: ingestor,
		secret:   secret,
		engine:   engine,
		logger:   logger,
	}

	r.setupRoutes()
	return r
}

func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) setupRoutes() {
	r.engine.POST("/webhook", r.webhook)
	r.engine.GET("/streams", r.listStreams)
	r.engine.GET("/streams/:streamId", r.getStream)
	r.engine.GET("/health", r.healthCheck)
}

func (r *Router) webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Failed to read body",
		})
		return
	}

	if !r.verifySignature(c, body) {
		webhooksRejected.Add(c, 1, metric.WithAttributes(attribute.String("reason", "signature")))
		r.logger.Warn("Invalid webhook signature",
			log.String("remote", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Invalid signature",
		})
		return
	}

	var req WebhookRequest
	if err := decode(body, &req); err != nil {
		r.rejectInvalid(c, err)
		return
	}

	if req.Event == eventURLValidation {
		r.validateURL(c, req.Payload)
		return
	}

	var payload StreamPayload
	if err := decode(req.Payload, &payload); err != nil {
		r.rejectInvalid(c, err)
		return
	}

	err = r.ingestor.HandleEvent(c.Request.Context(), req.Event, ingest.Notification{
		MeetingUUID: payload.MeetingUUID,
		StreamID:    payload.StreamID,
		ServerURLs:  payload.ServerURLs,
	})
	webhooksReceived.Add(c, 1, metric.WithAttributes(attribute.String("event", req.Event)))

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, ingest.ErrUnknownEvent):
		c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
	case errors.Is(err, registry.ErrStreamExists):
		c.JSON(http.StatusOK, gin.H{"success": true, "duplicate": true})
	case errors.Is(err, ingest.ErrInvalidNotification):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
	case errors.Is(err, protocol.ErrCapacity), errors.Is(err, ingest.ErrNotInitialized):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   err.Error(),
		})
	default:
		r.logger.Error("Failed to handle notification",
			log.String("event", req.Event),
			log.String("streamId", payload.StreamID),
			log.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to handle notification",
		})
	}
}

func (r *Router) validateURL(c *gin.Context, raw json.RawMessage) {
	if r.secret == "" {
		c.JSON(http.StatusNotImplemented, gin.H{
			"success": false,
			"error":   "Webhook secret not configured",
		})
		return
	}

	var payload URLValidationPayload
	if err := decode(raw, &payload); err != nil {
		r.rejectInvalid(c, err)
		return
	}

	urlValidations.Add(c, 1)
	c.JSON(http.StatusOK, gin.H{
		"plainToken":     payload.PlainToken,
		"encryptedToken": cryptoutil.HashToken(r.secret, payload.PlainToken),
	})
}

func (r *Router) verifySignature(c *gin.Context, body []byte) bool {
	if r.secret == "" {
		return true
	}
	sig := c.GetHeader(headerSignature)
	ts := c.GetHeader(headerTimestamp)
	if sig == "" || ts == "" {
		return false
	}
	return cryptoutil.Verify(cryptoutil.WebhookSignature(r.secret, ts, body), sig)
}

func (r *Router) rejectInvalid(c *gin.Context, err error) {
	webhooksRejected.Add(c, 1, metric.WithAttributes(attribute.String("reason", "validation")))
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Validation failed",
		"details": validation.FormatValidationError(err),
	})
}

func (r *Router) listStreams(c *gin.Context) {
	streams := r.ingestor.ActiveStreams()
	if streams == nil {
		streams = []rtms.StreamMetadata{}
	}
	c.JSON(http.StatusOK, gin.H{
		"streams": streams,
	})
}

func (r *Router) getStream(c *gin.Context) {
	var req GetStreamRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Validation failed",
			"details": validation.FormatValidationError(err),
		})
		return
	}

	meta, ok := r.ingestor.MetadataByStreamID(req.StreamID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Stream not found",
		})
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"streams":   len(r.ingestor.ActiveStreams()),
	})
}

// decode unmarshals JSON and runs the gin binding validator on the result.
func decode(data []byte, obj any) error {
	if err := json.Unmarshal(data, obj); err != nil {
		return err
	}
	return binding.Validator.ValidateStruct(obj)
}
