package protocol

import (
	"encoding/json"

	"github.com/imtaco/rtms-ingest/rtms"
)

// MsgType is the numeric discriminator carried by every wire message.
type MsgType int

const (
	MsgSignalingHandshakeReq  MsgType = 1
	MsgSignalingHandshakeResp MsgType = 2
	MsgDataHandshakeReq       MsgType = 3
	MsgDataHandshakeResp      MsgType = 4
	MsgEventSubscription      MsgType = 5
	MsgEventUpdate            MsgType = 6
	MsgClientReadyAck         MsgType = 7
	MsgStreamStateUpdate      MsgType = 8
	MsgSessionStateUpdate     MsgType = 9
	MsgKeepAliveReq           MsgType = 12
	MsgKeepAliveResp          MsgType = 13
	MsgAudio                  MsgType = 14
	MsgVideo                  MsgType = 15
	MsgShareScreen            MsgType = 16
	MsgTranscript             MsgType = 17
	MsgChat                   MsgType = 18
)

const ProtocolVersion = 1

// MediaTypeOf maps a data message type to its media type, or 0.
func MediaTypeOf(t MsgType) rtms.MediaType {
	switch t {
	case MsgAudio:
		return rtms.MediaAudio
	case MsgVideo:
		return rtms.MediaVideo
	case MsgShareScreen:
		return rtms.MediaShareScreen
	case MsgTranscript:
		return rtms.MediaTranscript
	case MsgChat:
		return rtms.MediaChat
	}
	return 0
}

type SignalingHandshakeRequest struct {
	MsgType           MsgType        `json:"msg_type"`
	ProtocolVersion   int            `json:"protocol_version"`
	MeetingUUID       string         `json:"meeting_uuid"`
	StreamID          string         `json:"stream_id"`
	Sequence          int64          `json:"sequence"`
	Signature         string         `json:"signature"`
	MediaType         rtms.MediaType `json:"media_type"`
	PayloadEncryption bool           `json:"payload_encryption"`
}

type DataHandshakeRequest struct {
	MsgType           MsgType        `json:"msg_type"`
	ProtocolVersion   int            `json:"protocol_version"`
	MeetingUUID       string         `json:"meeting_uuid"`
	StreamID          string         `json:"stream_id"`
	Sequence          int64          `json:"sequence"`
	Signature         string         `json:"signature"`
	MediaType         rtms.MediaType `json:"media_type"`
	PayloadEncryption bool           `json:"payload_encryption"`
	MediaParams       MediaParams    `json:"media_params"`
}

// MediaParams describes per-type negotiation. Only the carried types are set.
type MediaParams struct {
	Audio       *rtms.MediaTypeConfig `json:"audio,omitempty"`
	Video       *rtms.MediaTypeConfig `json:"video,omitempty"`
	ShareScreen *rtms.MediaTypeConfig `json:"deskshare,omitempty"`
	Transcript  *rtms.MediaTypeConfig `json:"transcript,omitempty"`
	Chat        *rtms.MediaTypeConfig `json:"chat,omitempty"`
}

func (p *MediaParams) Get(t rtms.MediaType) *rtms.MediaTypeConfig {
	if p == nil {
		return nil
	}
	switch t {
	case rtms.MediaAudio:
		return p.Audio
	case rtms.MediaVideo:
		return p.Video
	case rtms.MediaShareScreen:
		return p.ShareScreen
	case rtms.MediaTranscript:
		return p.Transcript
	case rtms.MediaChat:
		return p.Chat
	}
	return nil
}

func (p *MediaParams) Set(t rtms.MediaType, cfg rtms.MediaTypeConfig) {
	c := cfg
	switch t {
	case rtms.MediaAudio:
		p.Audio = &c
	case rtms.MediaVideo:
		p.Video = &c
	case rtms.MediaShareScreen:
		p.ShareScreen = &c
	case rtms.MediaTranscript:
		p.Transcript = &c
	case rtms.MediaChat:
		p.Chat = &c
	}
}

// Default negotiation values: raw 16kHz mono L16 audio, H264 HD video.
var DefaultMediaConfigs = map[rtms.MediaType]rtms.MediaTypeConfig{
	rtms.MediaAudio: {
		ContentType: 2,
		Codec:       1,
		SampleRate:  16000,
		Channels:    1,
		DataOption:  1,
		SendRate:    20,
	},
	rtms.MediaVideo: {
		ContentType: 3,
		Codec:       7,
		Resolution:  2,
		FPS:         25,
	},
	rtms.MediaShareScreen: {
		ContentType: 3,
		Codec:       7,
		Resolution:  2,
		FPS:         5,
	},
	rtms.MediaTranscript: {ContentType: 5},
	rtms.MediaChat:       {ContentType: 5},
}

type KeepAliveResponse struct {
	MsgType   MsgType `json:"msg_type"`
	Timestamp int64   `json:"timestamp"`
}

type ClientReadyAck struct {
	MsgType  MsgType `json:"msg_type"`
	StreamID string  `json:"stream_id"`
}

// ServerURLs holds data endpoint addresses. The platform sends either one string
// for every type or an object keyed by type name.
type ServerURLs struct {
	Single string
	ByType map[string]string
}

func (u *ServerURLs) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		u.Single = s
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	u.ByType = m
	return nil
}

func (u ServerURLs) MarshalJSON() ([]byte, error) {
	if u.ByType == nil {
		return json.Marshal(u.Single)
	}
	return json.Marshal(u.ByType)
}

// For returns the endpoint for t, falling back to "all" then to the single URL.
func (u ServerURLs) For(t rtms.MediaType) string {
	if u.ByType != nil {
		if t != rtms.MediaAll {
			if v := u.ByType[t.String()]; v != "" {
				return v
			}
			if t == rtms.MediaShareScreen {
				if v := u.ByType["deskshare"]; v != "" {
					return v
				}
			}
		}
		if v := u.ByType["all"]; v != "" {
			return v
		}
	}
	return u.Single
}

func (u ServerURLs) Empty() bool {
	if u.Single != "" {
		return false
	}
	for _, v := range u.ByType {
		if v != "" {
			return false
		}
	}
	return true
}

type MediaServer struct {
	ServerURLs ServerURLs `json:"server_urls"`
}
