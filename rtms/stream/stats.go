package stream

import (
	"sync"
	"time"

	"github.com/imtaco/rtms-ingest/rtms"
)

type mediaStats struct {
	first      time.Time
	last       time.Time
	count      int64
	lastTs     int64
	gapPending bool
}

// packetStats is written by every media read loop and read by Snapshot.
type packetStats struct {
	mu    sync.Mutex
	media map[rtms.MediaType]*mediaStats
}

func newPacketStats() *packetStats {
	return &packetStats{media: make(map[rtms.MediaType]*mediaStats)}
}

func (s *packetStats) get(t rtms.MediaType) *mediaStats {
	ms, ok := s.media[t]
	if !ok {
		ms = &mediaStats{}
		s.media[t] = ms
	}
	return ms
}

// record counts one real frame. It returns the platform timestamp of the
// previous frame when a reconnect gap is pending for t.
func (s *packetStats) record(t rtms.MediaType, ts int64, now time.Time) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.get(t)
	if ms.first.IsZero() {
		ms.first = now
	}
	ms.last = now
	ms.count++

	prev, gap := ms.lastTs, ms.gapPending && ms.lastTs > 0
	ms.gapPending = false
	if ts > ms.lastTs {
		ms.lastTs = ts
	}
	return prev, gap
}

func (s *packetStats) markGap(t rtms.MediaType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(t).gapPending = true
}

func (s *packetStats) snapshot() (first, last map[rtms.MediaType]time.Time, counts map[rtms.MediaType]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first = make(map[rtms.MediaType]time.Time, len(s.media))
	last = make(map[rtms.MediaType]time.Time, len(s.media))
	counts = make(map[rtms.MediaType]int64, len(s.media))
	for t, ms := range s.media {
		first[t] = ms.first
		last[t] = ms.last
		counts[t] = ms.count
	}
	return first, last, counts
}
