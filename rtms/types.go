package rtms

import (
	"fmt"
	"strings"
	"time"
)

// Identity identifies one platform stream. It is assigned by the platform when the
// stream starts and never changes.
type Identity struct {
	MeetingUUID string `json:"meetingUuid"`
	StreamID    string `json:"streamId"`
}

func (id Identity) String() string {
	return id.MeetingUUID + "/" + id.StreamID
}

// MediaType is a bitmask of the media carried by a stream.
type MediaType uint32

const (
	MediaAudio       MediaType = 1
	MediaVideo       MediaType = 2
	MediaShareScreen MediaType = 4
	MediaTranscript  MediaType = 8
	MediaChat        MediaType = 16
	// MediaAll asks the platform for every media type over one data socket.
	MediaAll MediaType = 32

	mediaEach = MediaAudio | MediaVideo | MediaShareScreen | MediaTranscript | MediaChat
)

var mediaNames = []struct {
	t    MediaType
	name string
}{
	{MediaAudio, "audio"},
	{MediaVideo, "video"},
	{MediaShareScreen, "sharescreen"},
	{MediaTranscript, "transcript"},
	{MediaChat, "chat"},
}

// Expand resolves MediaAll into the individual type bits.
func (m MediaType) Expand() MediaType {
	if m&MediaAll != 0 {
		return (m &^ MediaAll) | mediaEach
	}
	return m
}

// Split returns the single types contained in m, in wire order.
func (m MediaType) Split() []MediaType {
	m = m.Expand()
	out := make([]MediaType, 0, len(mediaNames))
	for _, n := range mediaNames {
		if m&n.t != 0 {
			out = append(out, n.t)
		}
	}
	return out
}

func (m MediaType) Has(t MediaType) bool {
	return m.Expand()&t != 0
}

// Continuous reports whether gaps in the type corrupt downstream timing.
func (m MediaType) Continuous() bool {
	return m == MediaAudio
}

// Binary reports whether frame data is base64 encoded on the wire.
func (m MediaType) Binary() bool {
	return m == MediaAudio || m == MediaVideo || m == MediaShareScreen
}

func (m MediaType) String() string {
	if m == MediaAll {
		return "all"
	}
	parts := make([]string, 0, len(mediaNames))
	for _, t := range m.Split() {
		for _, n := range mediaNames {
			if n.t == t {
				parts = append(parts, n.name)
			}
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("media(%d)", uint32(m))
	}
	return strings.Join(parts, "|")
}

// ParseMediaTypes turns names like "audio" or "all" into a bitmask.
func ParseMediaTypes(names []string) (MediaType, error) {
	var m MediaType
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if name == "all" {
			m |= mediaEach
			continue
		}
		found := false
		for _, n := range mediaNames {
			if n.name == name {
				m |= n.t
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown media type %q", raw)
		}
	}
	if m == 0 {
		return mediaEach, nil
	}
	return m, nil
}

// ConnectionState is tracked independently by every channel.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateAuthenticated
	StateReady
	StateStreaming
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// CanTransition allows only the next state, or Closed from anywhere.
func (s ConnectionState) CanTransition(to ConnectionState) bool {
	if to == StateClosed {
		return s != StateClosed
	}
	return to == s+1
}

// HandlerState is the aggregate state of a stream handler.
type HandlerState int

const (
	HandlerInitializing HandlerState = iota
	HandlerSignalingUp
	HandlerMediaUp
	HandlerStreaming
	HandlerDegraded
	HandlerClosed
)

func (s HandlerState) String() string {
	switch s {
	case HandlerInitializing:
		return "initializing"
	case HandlerSignalingUp:
		return "signaling_up"
	case HandlerMediaUp:
		return "media_up"
	case HandlerStreaming:
		return "streaming"
	case HandlerDegraded:
		return "degraded"
	case HandlerClosed:
		return "closed"
	}
	return fmt.Sprintf("handler(%d)", int(s))
}

// MediaTypeConfig holds parameters negotiated during a media handshake.
// It is read-only once the channel is ready.
type MediaTypeConfig struct {
	ContentType int `json:"content_type,omitempty"`
	Codec       int `json:"codec,omitempty"`
	SampleRate  int `json:"sample_rate,omitempty"`
	Channels    int `json:"channel,omitempty"`
	Resolution  int `json:"resolution,omitempty"`
	FPS         int `json:"fps,omitempty"`
	DataOption  int `json:"data_opt,omitempty"`
	SendRate    int `json:"send_rate,omitempty"`
}

// Frame is one decoded media payload.
type Frame struct {
	Type      MediaType
	Identity  Identity
	UserID    string // empty when the platform cannot attribute the speaker
	UserName  string
	Timestamp int64 // platform milliseconds
	Data      []byte
	Text      string
	Synthetic bool // gap filler, not received from the platform
}

func (f *Frame) SpeakerKnown() bool {
	return f.UserID != ""
}

// StreamMetadata is the snapshot kept for active and recently closed streams.
type StreamMetadata struct {
	Identity     Identity                      `json:"identity"`
	SessionID    string                        `json:"sessionId"`
	State        HandlerState                  `json:"state"`
	MediaTypes   MediaType                     `json:"mediaTypes"`
	CreatedAt    time.Time                     `json:"createdAt"`
	StoppedAt    time.Time                     `json:"stoppedAt,omitempty"`
	MediaConfigs map[MediaType]MediaTypeConfig `json:"mediaConfigs,omitempty"`
	FirstPacket  map[MediaType]time.Time       `json:"firstPacket,omitempty"`
	LastPacket   map[MediaType]time.Time       `json:"lastPacket,omitempty"`
	FrameCounts  map[MediaType]int64           `json:"frameCounts,omitempty"`
	Reconnects   int                           `json:"reconnects"`
	StopReason   string                        `json:"stopReason,omitempty"`
	LastError    string                        `json:"lastError,omitempty"`
}
