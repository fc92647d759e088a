package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.hackfix.me/switchboard/db/types"
)

// DBStore is a Store backed by the SQL database. The tables are shared
// between all nodes, so Flush is a no-op: only tag based invalidation is
// supported.
type DBStore struct {
	d      types.Querier
	logger *slog.Logger
}

var (
	_ Store            = (*DBStore)(nil)
	_ GarbageCollector = (*DBStore)(nil)
)

// NewDBStore returns a new database backed store.
func NewDBStore(d types.Querier, logger *slog.Logger) *DBStore {
	return &DBStore{d: d, logger: logger.With("component", "cache", "backend", "db")}
}

// Get implements Store.
func (s *DBStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data      []byte
		expiresAt sql.Null[int64]
	)
	err := s.d.QueryRowContext(ctx,
		`SELECT data, expires_at FROM cache_entries WHERE key = ?`, key).
		Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed loading cache entry: %w", err)
	}

	if expiresAt.Valid && expiresAt.V <= s.d.TimeNow().Unix() {
		return nil, false, nil
	}

	return data, true, nil
}

// Set implements Store.
func (s *DBStore) Set(ctx context.Context, key string, data []byte, tags []string, ttl time.Duration) error {
	now := s.d.TimeNow().UTC()
	var expiresAt sql.Null[int64]
	if ttl > 0 {
		expiresAt = sql.Null[int64]{V: now.Add(ttl).Unix(), Valid: true}
	}
	if data == nil {
		data = []byte{}
	}

	return s.d.Tx(ctx, func(tx types.Querier) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_tags WHERE entry_key = ?`, key); err != nil {
			return fmt.Errorf("failed clearing cache entry tags: %w", err)
		}

		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO cache_entries
			(key, data, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			key, data, now.Unix(), expiresAt)
		if err != nil {
			return fmt.Errorf("failed storing cache entry: %w", err)
		}

		for _, tag := range dedupe(tags) {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO cache_tags (entry_key, tag) VALUES (?, ?)`, key, tag)
			if err != nil {
				return fmt.Errorf("failed storing cache tag '%s': %w", tag, err)
			}
		}

		return nil
	})
}

// FlushByTag implements Store.
func (s *DBStore) FlushByTag(ctx context.Context, tag string) error {
	return s.FlushByTags(ctx, []string{tag})
}

// FlushByTags implements Store.
func (s *DBStore) FlushByTags(ctx context.Context, tags []string) error {
	tags = dedupe(tags)
	if len(tags) == 0 {
		return nil
	}

	var n int
	err := s.d.Tx(ctx, func(tx types.Querier) error {
		keys, err := s.keysByTags(ctx, tx, tags)
		if err != nil {
			return err
		}
		n = len(keys)
		return deleteEntries(ctx, tx, keys)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("flushed cache tags", "tags", tags, "entries", n)

	return nil
}

// Flush implements Store. It does nothing, since the database tables may be
// shared with other nodes.
func (s *DBStore) Flush(context.Context) error {
	s.logger.Debug("ignoring flush of shared cache")
	return nil
}

// CollectGarbage removes expired entries, and returns the number of removed
// entries.
func (s *DBStore) CollectGarbage(ctx context.Context) (int64, error) {
	var n int64
	err := s.d.Tx(ctx, func(tx types.Querier) error {
		now := tx.TimeNow().Unix()
		_, err := tx.ExecContext(ctx, `DELETE FROM cache_tags WHERE entry_key IN (
			SELECT key FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?)`, now)
		if err != nil {
			return fmt.Errorf("failed deleting expired cache tags: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
		if err != nil {
			return fmt.Errorf("failed deleting expired cache entries: %w", err)
		}
		n, err = res.RowsAffected()

		return err
	})

	return n, err
}

func (s *DBStore) keysByTags(ctx context.Context, tx types.Querier, tags []string) (_ []string, rerr error) {
	filter := types.InFilter("tag", tags)
	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT entry_key FROM cache_tags WHERE %s`, filter.Where),
		filter.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed loading cache keys by tag: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			rerr = fmt.Errorf("failed closing cache tag rows: %w", err)
		}
	}()

	var keys []string
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, types.ScanError{ModelName: "cache tag", Err: err}
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

func deleteEntries(ctx context.Context, tx types.Querier, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	filter := types.InFilter("entry_key", keys)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM cache_tags WHERE %s`, filter.Where), filter.Args...); err != nil {
		return fmt.Errorf("failed deleting cache tags: %w", err)
	}

	filter = types.InFilter("key", keys)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM cache_entries WHERE %s`, filter.Where), filter.Args...); err != nil {
		return fmt.Errorf("failed deleting cache entries: %w", err)
	}

	return nil
}
