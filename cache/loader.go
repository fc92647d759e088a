package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader coalesces concurrent loads of the same missing key, so that only one
// caller computes the value while the others wait for its result.
type Loader struct {
	store  Store
	group  singleflight.Group
	logger *slog.Logger
}

// NewLoader returns a new Loader backed by store.
func NewLoader(store Store, logger *slog.Logger) *Loader {
	return &Loader{store: store, logger: logger.With("component", "cache-loader")}
}

// Store returns the underlying store.
func (l *Loader) Store() Store {
	return l.store
}

// GetOrLoad returns the data stored under key, or calls load and stores its
// result with the given tags and ttl. Store failures are logged and don't
// prevent the loaded data from being returned.
func (l *Loader) GetOrLoad(
	ctx context.Context, key string, tags []string, ttl time.Duration,
	load func(context.Context) ([]byte, error),
) ([]byte, error) {
	data, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn("failed reading cache", "key", key, "error", err.Error())
	} else if ok {
		return data, nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		data, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := l.store.Set(ctx, key, data, tags, ttl); err != nil {
			l.logger.Warn("failed writing cache", "key", key, "error", err.Error())
		}
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed loading cache entry: %w", err)
	}

	return v.([]byte), nil //nolint:forcetypeassert // Only []byte is stored.
}
