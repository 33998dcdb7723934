package stream

import (
	"github.com/imtaco/rtms-ingest/rtms"
)

const (
	codecL16       = 1
	fillStepMillis = 20
	maxFillMillis  = 30_000
)

// fillGap returns silent frames covering (from, to) for raw L16 audio. Other
// media and codecs are never synthesized.
func fillGap(id rtms.Identity, t rtms.MediaType, cfg rtms.MediaTypeConfig, from, to int64) []rtms.Frame {
	if t != rtms.MediaAudio || cfg.Codec != codecL16 || cfg.SampleRate <= 0 {
		return nil
	}
	span := to - from
	if span <= 2*fillStepMillis {
		return nil
	}
	if span > maxFillMillis {
		from = to - maxFillMillis
	}

	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	size := cfg.SampleRate * fillStepMillis / 1000 * channels * 2
	silence := make([]byte, size)

	var frames []rtms.Frame
	for ts := from + fillStepMillis; ts < to; ts += fillStepMillis {
		frames = append(frames, rtms.Frame{
			Type:      rtms.MediaAudio,
			Identity:  id,
			Timestamp: ts,
			Data:      silence,
			Synthetic: true,
		})
	}
	return frames
}
