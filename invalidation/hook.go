package invalidation

import (
	"context"
	"fmt"
	"log/slog"

	"go.hackfix.me/switchboard/cache"
)

// Op is a kind of record change.
type Op string

// Record change operations.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Hook is notified after records are written. It flushes the cache entries
// tagged with the changed record right away, and enqueues the same tags so
// that entries rebuilt from stale replicas during the grace period are
// flushed again by the next sweep.
type Hook struct {
	queue  *Queue
	logger *slog.Logger
}

// NewHook returns a new Hook using queue and its store.
func NewHook(queue *Queue, logger *slog.Logger) *Hook {
	return &Hook{queue: queue, logger: logger.With("component", "invalidation")}
}

// Tags returns the cache tags affected by a change of the record id in
// table. Updates of a translated record also affect its l10n parent.
func Tags(op Op, table string, id, l10nParent uint64) []string {
	tags := []string{cache.Tag(table, id)}
	if op == OpUpdate && l10nParent != 0 && l10nParent != id {
		tags = append(tags, cache.Tag(table, l10nParent))
	}
	return tags
}

// RecordChanged flushes and enqueues the tags of the changed record.
func (h *Hook) RecordChanged(ctx context.Context, op Op, table string, id, l10nParent uint64) error {
	tags := Tags(op, table, id, l10nParent)

	if err := h.queue.Store().FlushByTags(ctx, tags); err != nil {
		return fmt.Errorf("failed flushing cache tags: %w", err)
	}

	for _, tag := range tags {
		if _, err := h.queue.Enqueue(ctx, tag); err != nil {
			return err
		}
	}

	h.logger.Debug("record changed", "op", op, "table", table, "id", id, "tags", tags)

	return nil
}
