package registry

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/imtaco/rtms-ingest/internal/errors"
	"github.com/imtaco/rtms-ingest/internal/log"
	"github.com/imtaco/rtms-ingest/internal/sync"
	"github.com/imtaco/rtms-ingest/rtms"
)

const (
	ErrStreamExists errors.Code = "stream_exists"

	DefaultCacheSize = 100
)

// Stream is what the registry needs from a running handler.
type Stream interface {
	Identity() rtms.Identity
	Snapshot() rtms.StreamMetadata
}

// Registry tracks active streams and keeps metadata of closed ones in a
// bounded cache. Oldest archived entries are evicted first.
type Registry[S Stream] struct {
	active *sync.Map[rtms.Identity, S]
	cache  *lru.Cache[rtms.Identity, rtms.StreamMetadata]
	logger *log.Logger
}

func New[S Stream](cacheSize int, logger *log.Logger) (*Registry[S], error) {
	if logger == nil {
		panic("logger is required")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.NewWithEvict(cacheSize, func(id rtms.Identity, _ rtms.StreamMetadata) {
		logger.Debug("evict stream metadata",
			log.String("meetingUuid", id.MeetingUUID),
			log.String("streamId", id.StreamID))
		cacheEvictions.Add(ctxBackground, 1)
	})
	if err != nil {
		return nil, err
	}

	return &Registry[S]{
		active: sync.NewMap[rtms.Identity, S](),
		cache:  cache,
		logger: logger,
	}, nil
}

// Add registers s. A stream with the same identity must not already be active.
func (r *Registry[S]) Add(s S) error {
	id := s.Identity()
	if _, loaded := r.active.LoadOrStore(id, s); loaded {
		return errors.Newf(ErrStreamExists, "stream %s already active", id)
	}
	return nil
}

// Remove drops s only if it is still the registered stream for its identity.
func (r *Registry[S]) Remove(s S) bool {
	return r.active.CompareAndDelete(s.Identity(), s)
}

func (r *Registry[S]) Get(id rtms.Identity) (S, bool) {
	return r.active.Load(id)
}

// FindByStreamID looks an active stream up by stream id alone.
func (r *Registry[S]) FindByStreamID(streamID string) (S, bool) {
	var (
		found S
		ok    bool
	)
	r.active.Range(func(id rtms.Identity, s S) bool {
		if id.StreamID == streamID {
			found, ok = s, true
			return false
		}
		return true
	})
	return found, ok
}

// Archive stores the final metadata of a closed stream. Archiving the same
// identity again replaces the entry.
func (r *Registry[S]) Archive(meta rtms.StreamMetadata) {
	r.cache.Add(meta.Identity, meta)
}

// GetMetadata prefers the live snapshot and falls back to the archive.
func (r *Registry[S]) GetMetadata(id rtms.Identity) (rtms.StreamMetadata, bool) {
	if s, ok := r.active.Load(id); ok {
		return s.Snapshot(), true
	}
	// Peek keeps eviction in insertion order
	return r.cache.Peek(id)
}

// FindMetadataByStreamID searches active streams, then the archive.
func (r *Registry[S]) FindMetadataByStreamID(streamID string) (rtms.StreamMetadata, bool) {
	if s, ok := r.FindByStreamID(streamID); ok {
		return s.Snapshot(), true
	}
	for _, id := range r.cache.Keys() {
		if id.StreamID == streamID {
			return r.cache.Peek(id)
		}
	}
	return rtms.StreamMetadata{}, false
}

func (r *Registry[S]) Len() int {
	return r.active.Len()
}

// Archived returns the number of cached metadata entries.
func (r *Registry[S]) Archived() int {
	return r.cache.Len()
}

// Range iterates active streams. fn must not call back into the registry
// with write operations.
func (r *Registry[S]) Range(fn func(s S) bool) {
	r.active.Range(func(_ rtms.Identity, s S) bool {
		return fn(s)
	})
}

// List returns the active streams.
func (r *Registry[S]) List() []S {
	return r.active.Values()
}
