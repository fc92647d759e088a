package models

import (
	"context"
	"fmt"
	"time"

	"go.hackfix.me/switchboard/db/types"
)

// CacheQueueEntry is a cache tag waiting to be flushed by a deferred sweep.
type CacheQueueEntry struct {
	ID         uint64
	Tag        string
	EnqueuedAt time.Time
}

// Save inserts the entry into the queue. If EnqueuedAt is zero, the current
// database time is used.
func (e *CacheQueueEntry) Save(ctx context.Context, d types.Querier) error {
	if e.Tag == "" {
		return types.InvalidInputError{Msg: "cache tag must not be empty"}
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = d.TimeNow().UTC()
	}
	// Second precision, since that's how it's stored.
	e.EnqueuedAt = e.EnqueuedAt.Truncate(time.Second)

	res, err := d.ExecContext(ctx,
		`INSERT INTO cache_queue (id, tag, enqueued_at) VALUES (NULL, ?, ?)`,
		e.Tag, e.EnqueuedAt.Unix())
	if err != nil {
		return types.Err("cache queue entry", fmt.Sprintf("tag '%s'", e.Tag), err)
	}

	e.ID, err = insertedID(res)

	return err
}

// CacheQueueEntries returns entries from the queue ordered by ID. An optional
// filter can be passed to limit the results.
func CacheQueueEntries(
	ctx context.Context, d types.Querier, filter *types.Filter,
) (entries []*CacheQueueEntry, rerr error) {
	where := "1=1"
	args := []any{}
	limit := ""
	if filter != nil {
		where = filter.Where
		args = filter.Args
		if filter.Limit > 0 {
			limit = fmt.Sprintf("LIMIT %d", filter.Limit)
		}
	}

	query := fmt.Sprintf(`SELECT q.id, q.tag, q.enqueued_at
		FROM cache_queue q
		WHERE %s
		ORDER BY q.id ASC %s`, where, limit)

	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.LoadError{ModelName: "cache queue entries", Err: err}
	}
	defer func() {
		if err = rows.Close(); err != nil {
			rerr = fmt.Errorf("failed closing cache queue rows: %w", err)
		}
	}()

	entries = make([]*CacheQueueEntry, 0)
	for rows.Next() {
		var (
			e          CacheQueueEntry
			enqueuedAt int64
		)
		if err = rows.Scan(&e.ID, &e.Tag, &enqueuedAt); err != nil {
			return nil, types.ScanError{ModelName: "cache queue entry", Err: err}
		}
		e.EnqueuedAt = time.Unix(enqueuedAt, 0).UTC()
		entries = append(entries, &e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating over cache queue rows: %w", err)
	}

	return entries, nil
}

// DueCacheQueueEntries returns the entries enqueued at or before cutoff.
func DueCacheQueueEntries(
	ctx context.Context, d types.Querier, cutoff time.Time,
) ([]*CacheQueueEntry, error) {
	return CacheQueueEntries(ctx, d,
		types.NewFilter("q.enqueued_at <= ?", []any{cutoff.Unix()}))
}

// DeleteCacheQueueEntries removes the entries with the given IDs, and returns
// the number of deleted rows. IDs that don't exist are ignored.
func DeleteCacheQueueEntries(ctx context.Context, d types.Querier, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	filter := types.InFilter("id", ids)
	res, err := d.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM cache_queue WHERE %s`, filter.Where), filter.Args...)
	if err != nil {
		return 0, fmt.Errorf("failed deleting cache queue entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed getting affected rows: %w", err)
	}

	return n, nil
}

// CountCacheQueueEntries returns the number of queued entries.
func CountCacheQueueEntries(ctx context.Context, d types.Querier) (int, error) {
	return countRows(ctx, d, "cache_queue", nil)
}
