package protocol

import (
	"fmt"
	"strings"

	"github.com/imtaco/rtms-ingest/internal/errors"
	"github.com/imtaco/rtms-ingest/rtms"
)

const (
	ErrConnection       errors.Code = "connection_error"
	ErrAuth             errors.Code = "authentication_error"
	ErrProtocol         errors.Code = "protocol_error"
	ErrCapacity         errors.Code = "capacity_error"
	ErrDecode           errors.Code = "decode_error"
	ErrUnknownStatus    errors.Code = "unknown_status"
	ErrHandshakeTimeout errors.Code = "handshake_timeout"
)

const (
	StatusOK                 = 0
	StatusInvalidSignature   = 1
	StatusInvalidCredentials = 2
	StatusStreamNotFound     = 3
	StatusConcurrencyLimit   = 4
	StatusDuplicateStream    = 5
	StatusMalformedRequest   = 6
	StatusTimeout            = 7
	StatusServerBusy         = 8
)

type statusInfo struct {
	name        string
	category    errors.Code
	causes      []string
	remediation string
}

var statusTable = map[int]statusInfo{
	StatusInvalidSignature: {
		name:     "INVALID_SIGNATURE",
		category: ErrAuth,
		causes: []string{
			"signature does not match client id, meeting uuid and stream id",
			"client secret does not belong to the client id",
		},
		remediation: "verify the client id/secret pair and that the signature covers the ids from the start notification",
	},
	StatusInvalidCredentials: {
		name:     "INVALID_CREDENTIALS",
		category: ErrAuth,
		causes: []string{
			"the app is not authorized for this meeting",
			"credentials were rotated or revoked",
		},
		remediation: "check the app installation and scopes for the account owning the meeting",
	},
	StatusStreamNotFound: {
		name:     "STREAM_NOT_FOUND",
		category: ErrAuth,
		causes: []string{
			"the stream already ended",
			"meeting uuid and stream id do not belong together",
		},
		remediation: "only connect with the tuple from a fresh start notification",
	},
	StatusConcurrencyLimit: {
		name:     "CONCURRENCY_LIMIT",
		category: ErrCapacity,
		causes: []string{
			"the account reached the maximum number of concurrent streams",
		},
		remediation: "stop unused streams or request a higher limit; do not retry immediately",
	},
	StatusDuplicateStream: {
		name:     "DUPLICATE_CONNECTION",
		category: ErrCapacity,
		causes: []string{
			"another client is already connected to this stream",
		},
		remediation: "make sure only one ingestion instance handles each stream",
	},
	StatusMalformedRequest: {
		name:     "MALFORMED_REQUEST",
		category: ErrProtocol,
		causes: []string{
			"the handshake request is missing fields or has invalid values",
		},
		remediation: "check the requested media types and media parameters",
	},
	StatusTimeout: {
		name:     "HANDSHAKE_TIMEOUT",
		category: ErrConnection,
		causes: []string{
			"the platform did not complete the handshake in time",
		},
		remediation: "transient; the client retries automatically",
	},
	StatusServerBusy: {
		name:     "SERVER_BUSY",
		category: ErrConnection,
		causes: []string{
			"the media server is temporarily overloaded",
		},
		remediation: "transient; the client retries automatically",
	},
}

// StatusError is the structured error surfaced to subscribers.
type StatusError struct {
	Code        errors.Code    `json:"code"`
	Status      int            `json:"status"`
	StatusName  string         `json:"statusName,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Causes      []string       `json:"causes,omitempty"`
	Remediation string         `json:"remediation,omitempty"`
	Channel     string         `json:"channel,omitempty"`
	Identity    rtms.Identity  `json:"identity"`
	Media       rtms.MediaType `json:"media,omitempty"`
	Err         error          `json:"-"`
}

func (e *StatusError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", e.Code)
	if e.Channel != "" {
		fmt.Fprintf(&b, " on %s", e.Channel)
	}
	if e.StatusName != "" {
		fmt.Fprintf(&b, ": status %d %s", e.Status, e.StatusName)
	} else if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) Is(target error) bool {
	t, ok := target.(errors.Code)
	if !ok {
		return false
	}
	return e.Code == t
}

// Retryable reports whether the handler may reconnect after this error.
func (e *StatusError) Retryable() bool {
	return e.Code == ErrConnection || e.Code == ErrHandshakeTimeout
}

// StatusToError maps a non-zero handshake status. Codes missing from the table
// are surfaced verbatim as ErrUnknownStatus.
func StatusToError(status int, reason string) *StatusError {
	info, ok := statusTable[status]
	if !ok {
		return &StatusError{
			Code:        ErrUnknownStatus,
			Status:      status,
			Reason:      reason,
			Causes:      []string{fmt.Sprintf("platform returned undocumented status %d", status)},
			Remediation: "report the status code and reason to the platform",
		}
	}
	return &StatusError{
		Code:        info.category,
		Status:      status,
		StatusName:  info.name,
		Reason:      reason,
		Causes:      info.causes,
		Remediation: info.remediation,
	}
}

// Classify turns any channel error into a StatusError.
func Classify(err error) *StatusError {
	if err == nil {
		return nil
	}
	if se, ok := errors.As[*StatusError](err); ok {
		return *se
	}

	var code errors.Code
	switch {
	case errors.Is(err, ErrAuth):
		code = ErrAuth
	case errors.Is(err, ErrCapacity):
		code = ErrCapacity
	case errors.Is(err, ErrProtocol):
		code = ErrProtocol
	case errors.Is(err, ErrDecode):
		code = ErrDecode
	case errors.Is(err, ErrHandshakeTimeout):
		code = ErrHandshakeTimeout
	default:
		code = ErrConnection
	}
	se := &StatusError{Code: code, Err: err}
	switch code {
	case ErrConnection, ErrHandshakeTimeout:
		se.Causes = []string{"the socket dropped or could not be opened"}
		se.Remediation = "transient; the client retries automatically"
	case ErrAuth:
		se.Causes = []string{"the handshake response was missing or unsigned"}
		se.Remediation = "verify credentials and signing"
	}
	return se
}
