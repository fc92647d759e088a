package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultMemorySize is the default maximum number of entries of a MemoryStore.
const DefaultMemorySize = 4096

type memEntry struct {
	data      []byte
	tags      []string
	expiresAt time.Time
}

// MemoryStore is an in-process, size bounded LRU Store. It's not shared
// between nodes, so Flush is supported.
type MemoryStore struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[string, memEntry]
	tags    map[string]map[string]struct{}
	timeNow func() time.Time
	logger  *slog.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a new in-memory store holding at most size entries.
// If size is not positive, DefaultMemorySize is used.
func NewMemoryStore(size int, timeNow func() time.Time, logger *slog.Logger) (*MemoryStore, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}

	s := &MemoryStore{
		tags:    map[string]map[string]struct{}{},
		timeNow: timeNow,
		logger:  logger.With("component", "cache", "backend", "memory"),
	}

	// The eviction callback runs synchronously, with s.mu already held by the
	// caller.
	var err error
	s.lru, err = simplelru.NewLRU[string, memEntry](size, s.untag)
	if err != nil {
		return nil, fmt.Errorf("failed creating LRU cache: %w", err)
	}

	return s, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(s.timeNow()) {
		s.lru.Remove(key)
		return nil, false, nil
	}

	return e.data, true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, data []byte, tags []string, ttl time.Duration) error {
	e := memEntry{data: data, tags: dedupe(tags)}
	if ttl > 0 {
		e.expiresAt = s.timeNow().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove first, so that the tags of the previous value are cleaned up.
	s.lru.Remove(key)
	s.lru.Add(key, e)
	for _, tag := range e.tags {
		keys, ok := s.tags[tag]
		if !ok {
			keys = map[string]struct{}{}
			s.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}

	return nil
}

// FlushByTag implements Store.
func (s *MemoryStore) FlushByTag(ctx context.Context, tag string) error {
	return s.FlushByTags(ctx, []string{tag})
}

// FlushByTags implements Store.
func (s *MemoryStore) FlushByTags(_ context.Context, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, tag := range tags {
		for key := range s.tags[tag] {
			if s.lru.Remove(key) {
				n++
			}
		}
	}

	s.logger.Debug("flushed cache tags", "tags", tags, "entries", n)

	return nil
}

// Flush implements Store.
func (s *MemoryStore) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lru.Purge()
	clear(s.tags)

	return nil
}

// Len returns the number of entries in the store, including expired ones
// that haven't been accessed since they expired.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Len()
}

// untag removes key from the tag index. It must be called with s.mu held.
func (s *MemoryStore) untag(key string, e memEntry) {
	for _, tag := range e.tags {
		keys := s.tags[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.tags, tag)
		}
	}
}
