package models

import (
	"context"
	"database/sql"
	"fmt"

	"go.hackfix.me/switchboard/db/types"
)

// countRows returns the number of rows of table matching filter, or all rows
// if filter is nil.
func countRows(ctx context.Context, d types.Querier, table string, filter *types.Filter) (int, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table)
	var args []any
	if filter != nil {
		q += " WHERE " + filter.Where
		args = filter.Args
	}

	var count int
	if err := d.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed counting %s rows: %w", table, err)
	}

	return count, nil
}

// insertedID returns the rowid assigned by the last INSERT.
func insertedID(result sql.Result) (uint64, error) {
	id, err := result.LastInsertId()
	switch {
	case err != nil:
		return 0, fmt.Errorf("failed reading inserted row ID: %w", err)
	case id < 0:
		return 0, fmt.Errorf("invalid inserted row ID %d", id)
	}

	return uint64(id), nil
}
