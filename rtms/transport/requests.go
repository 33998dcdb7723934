package transport

import "encoding/json"

const eventURLValidation = "endpoint.url_validation"

// WebhookRequest is the envelope of every platform notification.
type WebhookRequest struct {
	Event   string          `json:"event" binding:"required"`
	EventTS int64           `json:"event_ts"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// StreamPayload is the payload of rtms_started and rtms_stopped notifications.
type StreamPayload struct {
	MeetingUUID string `json:"meeting_uuid"`
	// StreamID: base64 or uuid characters, up to 128 - required
	StreamID   string `json:"rtms_stream_id" binding:"required,streamid"`
	ServerURLs string `json:"server_urls" binding:"omitempty,wsurl"`
}

type URLValidationPayload struct {
	PlainToken string `json:"plainToken" binding:"required"`
}

// GetStreamRequest represents the request to read stream metadata (from URL param)
type GetStreamRequest struct {
	StreamID string `uri:"streamId" binding:"required,streamid"`
}
