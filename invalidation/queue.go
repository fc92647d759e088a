package invalidation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.hackfix.me/switchboard/cache"
	"go.hackfix.me/switchboard/db/models"
	"go.hackfix.me/switchboard/db/types"
)

// DefaultGracePeriod is how long a queued tag waits before it's flushed.
const DefaultGracePeriod = 10 * time.Minute

// deleteBatchSize bounds the number of IDs in a single DELETE statement, to
// stay well below the SQLite variable limit.
const deleteBatchSize = 500

// SweepResult summarizes a single sweep.
type SweepResult struct {
	// Tags are the distinct tags that were flushed.
	Tags []string
	// Deleted is the number of queue entries removed.
	Deleted int64
}

// Queue is a persistent queue of cache tags to flush after a grace period.
// Delivery is at-least-once: a tag may be flushed more than once if a sweep
// fails after flushing but before deleting the entries.
type Queue struct {
	d      types.Querier
	store  cache.Store
	logger *slog.Logger
}

// NewQueue returns a new queue persisted in d, flushing tags from store.
func NewQueue(d types.Querier, store cache.Store, logger *slog.Logger) *Queue {
	return &Queue{d: d, store: store, logger: logger.With("component", "invalidation")}
}

// Store returns the cache store flushed by the queue.
func (q *Queue) Store() cache.Store {
	return q.store
}

// Enqueue adds tag to the queue, timestamped with the current time.
func (q *Queue) Enqueue(ctx context.Context, tag string) (*models.CacheQueueEntry, error) {
	e := &models.CacheQueueEntry{Tag: tag}
	if err := e.Save(ctx, q.d); err != nil {
		return nil, fmt.Errorf("failed enqueuing cache tag: %w", err)
	}
	q.logger.Debug("enqueued cache tag", "tag", tag, "id", e.ID)

	return e, nil
}

// Pending returns all entries currently in the queue, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]*models.CacheQueueEntry, error) {
	return models.CacheQueueEntries(ctx, q.d, nil)
}

// Sweep flushes every distinct tag enqueued at or before now-grace, and then
// removes the processed entries. Entries enqueued while the sweep runs are
// left for the next one. If flushing fails, no entries are removed.
func (q *Queue) Sweep(ctx context.Context, now time.Time, grace time.Duration) (SweepResult, error) {
	var res SweepResult

	due, err := models.DueCacheQueueEntries(ctx, q.d, now.Add(-grace))
	if err != nil {
		return res, err
	}
	if len(due) == 0 {
		return res, nil
	}

	ids := make([]uint64, 0, len(due))
	seen := make(map[string]struct{}, len(due))
	for _, e := range due {
		ids = append(ids, e.ID)
		if _, ok := seen[e.Tag]; ok {
			continue
		}
		seen[e.Tag] = struct{}{}
		res.Tags = append(res.Tags, e.Tag)
	}

	if err = q.store.FlushByTags(ctx, res.Tags); err != nil {
		return res, fmt.Errorf("failed flushing cache tags: %w", err)
	}

	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		n, err := models.DeleteCacheQueueEntries(ctx, q.d, ids[start:end])
		res.Deleted += n
		if err != nil {
			return res, err
		}
	}

	q.logger.Debug("swept cache queue", "tags", len(res.Tags), "deleted", res.Deleted)

	return res, nil
}
