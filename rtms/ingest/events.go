package ingest

import (
	"github.com/imtaco/rtms-ingest/rtms"
	"github.com/imtaco/rtms-ingest/rtms/protocol"
)

type Kind string

const (
	KindAudio       Kind = "audio"
	KindVideo       Kind = "video"
	KindShareScreen Kind = "sharescreen"
	KindTranscript  Kind = "transcript"
	KindChat        Kind = "chat"
	KindStarted     Kind = "started"
	KindStopped     Kind = "stopped"
	KindError       Kind = "error"
)

// Event is the closed set of payloads delivered to subscribers.
type Event interface {
	Kind() Kind
	isEvent()
}

// BinaryPayload carries audio, video and screen share data.
type BinaryPayload struct {
	Data      []byte
	UserID    string
	UserName  string
	Timestamp int64
	Identity  rtms.Identity
	// Synthetic marks silence inserted over a reconnect gap.
	Synthetic bool
}

type TextPayload struct {
	Text      string
	UserID    string
	UserName  string
	Timestamp int64
	Identity  rtms.Identity
}

type AudioEvent struct{ BinaryPayload }

type VideoEvent struct{ BinaryPayload }

type ShareScreenEvent struct{ BinaryPayload }

type TranscriptEvent struct{ TextPayload }

type ChatEvent struct{ TextPayload }

type StartedEvent struct {
	Metadata rtms.StreamMetadata
}

type StoppedEvent struct {
	Metadata rtms.StreamMetadata
}

type ErrorEvent struct {
	Err *protocol.StatusError
}

func (AudioEvent) Kind() Kind       { return KindAudio }
func (VideoEvent) Kind() Kind       { return KindVideo }
func (ShareScreenEvent) Kind() Kind { return KindShareScreen }
func (TranscriptEvent) Kind() Kind  { return KindTranscript }
func (ChatEvent) Kind() Kind        { return KindChat }
func (StartedEvent) Kind() Kind     { return KindStarted }
func (StoppedEvent) Kind() Kind     { return KindStopped }
func (ErrorEvent) Kind() Kind       { return KindError }

func (AudioEvent) isEvent()       {}
func (VideoEvent) isEvent()       {}
func (ShareScreenEvent) isEvent() {}
func (TranscriptEvent) isEvent()  {}
func (ChatEvent) isEvent()        {}
func (StartedEvent) isEvent()     {}
func (StoppedEvent) isEvent()     {}
func (ErrorEvent) isEvent()       {}

// Kinds lists every event kind.
var Kinds = []Kind{
	KindAudio, KindVideo, KindShareScreen, KindTranscript, KindChat,
	KindStarted, KindStopped, KindError,
}

func eventFromFrame(f rtms.Frame) Event {
	bin := BinaryPayload{
		Data:      f.Data,
		UserID:    f.UserID,
		UserName:  f.UserName,
		Timestamp: f.Timestamp,
		Identity:  f.Identity,
		Synthetic: f.Synthetic,
	}
	text := TextPayload{
		Text:      f.Text,
		UserID:    f.UserID,
		UserName:  f.UserName,
		Timestamp: f.Timestamp,
		Identity:  f.Identity,
	}

	switch f.Type {
	case rtms.MediaAudio:
		return AudioEvent{bin}
	case rtms.MediaVideo:
		return VideoEvent{bin}
	case rtms.MediaShareScreen:
		return ShareScreenEvent{bin}
	case rtms.MediaTranscript:
		return TranscriptEvent{text}
	case rtms.MediaChat:
		return ChatEvent{text}
	}
	return nil
}
