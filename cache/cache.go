package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"go.hackfix.me/switchboard/crypto"
)

// Store is a tag aware cache of handler output. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the data stored under key. The second return value is
	// false if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key, associated with the given tags. A zero ttl
	// never expires.
	Set(ctx context.Context, key string, data []byte, tags []string, ttl time.Duration) error
	// FlushByTag removes all entries associated with tag. Unknown tags are a
	// no-op.
	FlushByTag(ctx context.Context, tag string) error
	// FlushByTags removes all entries associated with any of tags.
	FlushByTags(ctx context.Context, tags []string) error
	// Flush removes all entries, if the backend supports it.
	Flush(ctx context.Context) error
}

// GarbageCollector is implemented by stores that need expired entries to be
// removed periodically.
type GarbageCollector interface {
	CollectGarbage(ctx context.Context) (int64, error)
}

// Key returns a cache key derived from parts. The key is stable across
// processes, and distinct for different part boundaries.
func Key(parts ...string) string {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p)
		sb.WriteByte(0)
	}
	sum := crypto.Hash("cache-key", []byte(sb.String()))
	return base58.Encode(sum[:])
}

// Tag returns the cache tag of a record.
func Tag(table string, id uint64) string {
	return table + "%" + strconv.FormatUint(id, 10)
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
