package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes the handshake signature for a stream.
type Signer func(meetingUUID, streamID string) string

// Sign returns the hex HMAC-SHA256 of "clientID,meetingUUID,streamID" keyed by secret.
func Sign(secret, clientID, meetingUUID, streamID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(clientID + "," + meetingUUID + "," + streamID))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACSigner binds credentials into a Signer.
func HMACSigner(clientID, secret string) Signer {
	return func(meetingUUID, streamID string) string {
		return Sign(secret, clientID, meetingUUID, streamID)
	}
}

// HashToken signs a webhook validation challenge.
func HashToken(secret, token string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares two hex signatures in constant time.
func Verify(expected, actual string) bool {
	return hmac.Equal([]byte(expected), []byte(actual))
}

// WebhookSignature returns the "v0=" header value for a notification body.
func WebhookSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
