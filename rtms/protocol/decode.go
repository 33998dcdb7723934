package protocol

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/imtaco/rtms-ingest/internal/errors"
	"github.com/imtaco/rtms-ingest/rtms"
)

// Message is the closed set of inbound wire messages.
type Message interface {
	Type() MsgType
	isMessage()
}

type HandshakeResponse struct {
	MsgType     MsgType      `json:"msg_type"`
	StatusCode  int          `json:"status_code"`
	Reason      string       `json:"reason,omitempty"`
	MediaServer *MediaServer `json:"media_server,omitempty"`
	MediaParams *MediaParams `json:"media_params,omitempty"`
}

func (m *HandshakeResponse) Type() MsgType { return m.MsgType }
func (*HandshakeResponse) isMessage()      {}

// OK reports a successful handshake.
func (m *HandshakeResponse) OK() bool { return m.StatusCode == StatusOK }

type KeepAliveRequest struct {
	Timestamp int64 `json:"timestamp"`
}

func (*KeepAliveRequest) Type() MsgType { return MsgKeepAliveReq }
func (*KeepAliveRequest) isMessage()    {}

type StreamStateUpdate struct {
	State     StreamState `json:"state"`
	Reason    int         `json:"reason"`
	Timestamp int64       `json:"timestamp"`
}

func (*StreamStateUpdate) Type() MsgType { return MsgStreamStateUpdate }
func (*StreamStateUpdate) isMessage()    {}

type SessionStateUpdate struct {
	SessionID string `json:"session_id"`
	State     int    `json:"state"`
	Timestamp int64  `json:"timestamp"`
}

func (*SessionStateUpdate) Type() MsgType { return MsgSessionStateUpdate }
func (*SessionStateUpdate) isMessage()    {}

// MediaFrame is a data message with its payload decoded.
type MediaFrame struct {
	MsgType   MsgType
	Media     rtms.MediaType
	UserID    string
	UserName  string
	Timestamp int64
	Data      []byte
	Text      string
}

func (m *MediaFrame) Type() MsgType { return m.MsgType }
func (*MediaFrame) isMessage()      {}

// Unknown carries message types the client does not handle.
type Unknown struct {
	MsgType MsgType
}

func (m *Unknown) Type() MsgType { return m.MsgType }
func (*Unknown) isMessage()      {}

type StreamState int

const (
	StreamInactive    StreamState = 0
	StreamActive      StreamState = 1
	StreamInterrupted StreamState = 2
	StreamTerminating StreamState = 3
	StreamTerminated  StreamState = 4
)

type envelope struct {
	MsgType *MsgType        `json:"msg_type"`
	Content json.RawMessage `json:"content,omitempty"`
}

type frameContent struct {
	UserID    json.RawMessage `json:"user_id"`
	UserName  string          `json:"user_name"`
	Data      string          `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Decode parses one inbound text frame. Malformed input yields ErrProtocol,
// undecodable payloads yield ErrDecode; both are per-frame failures.
func Decode(bs []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(bs, &env); err != nil {
		return nil, errors.Wrap(ErrProtocol, err, "malformed message")
	}
	if env.MsgType == nil {
		return nil, errors.New(ErrProtocol, "missing msg_type")
	}

	switch t := *env.MsgType; t {
	case MsgSignalingHandshakeResp, MsgDataHandshakeResp:
		var m HandshakeResponse
		if err := json.Unmarshal(bs, &m); err != nil {
			return nil, errors.Wrap(ErrProtocol, err, "malformed handshake response")
		}
		return &m, nil

	case MsgKeepAliveReq:
		var m KeepAliveRequest
		if err := json.Unmarshal(bs, &m); err != nil {
			return nil, errors.Wrap(ErrProtocol, err, "malformed keep-alive")
		}
		return &m, nil

	case MsgStreamStateUpdate:
		var m StreamStateUpdate
		if err := json.Unmarshal(bs, &m); err != nil {
			return nil, errors.Wrap(ErrProtocol, err, "malformed stream state update")
		}
		return &m, nil

	case MsgSessionStateUpdate:
		var m SessionStateUpdate
		if err := json.Unmarshal(bs, &m); err != nil {
			return nil, errors.Wrap(ErrProtocol, err, "malformed session state update")
		}
		return &m, nil

	case MsgAudio, MsgVideo, MsgShareScreen, MsgTranscript, MsgChat:
		return decodeFrame(t, env.Content)

	default:
		return &Unknown{MsgType: t}, nil
	}
}

func decodeFrame(t MsgType, raw json.RawMessage) (*MediaFrame, error) {
	if len(raw) == 0 {
		return nil, errors.Newf(ErrProtocol, "msg_type %d without content", t)
	}
	var c frameContent
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(ErrProtocol, err, "malformed frame content")
	}

	media := MediaTypeOf(t)
	frame := &MediaFrame{
		MsgType:   t,
		Media:     media,
		UserID:    parseUserID(c.UserID),
		UserName:  c.UserName,
		Timestamp: c.Timestamp,
	}

	if media.Binary() {
		data, err := base64.StdEncoding.DecodeString(c.Data)
		if err != nil {
			return nil, errors.Wrapf(ErrDecode, err, "invalid base64 %s payload", media)
		}
		frame.Data = data
	} else {
		frame.Text = c.Data
	}
	return frame, nil
}

// parseUserID accepts numeric or string ids. Zero means the platform could not
// attribute the payload and is reported as an empty id.
func parseUserID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			if i == 0 {
				return ""
			}
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "0" {
			return ""
		}
		return s
	}
	return ""
}
