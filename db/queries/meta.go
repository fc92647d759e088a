package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.hackfix.me/switchboard/db/types"
)

// DataTables returns the names of the tables that hold application data,
// excluding SQLite and migration bookkeeping tables.
func DataTables(ctx context.Context, d types.Querier) (_ map[string]struct{}, rerr error) {
	rows, err := d.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' AND name NOT LIKE '\_%' ESCAPE '\'`)
	if err != nil {
		return nil, fmt.Errorf("failed listing tables: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && rerr == nil {
			rerr = cerr
		}
	}()

	tables := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed scanning table name: %w", err)
		}
		tables[name] = struct{}{}
	}

	return tables, rows.Err()
}

// Version returns the Switchboard application version the database was
// initialized with. If the returned sql.Null value is invalid, it indicates
// that the database hasn't been initialized.
func Version(ctx context.Context, d types.Querier) (sql.Null[string], error) {
	var version sql.Null[string]
	err := d.QueryRowContext(ctx, `SELECT version FROM _meta`).
		Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) && !strings.Contains(err.Error(), "no such table") {
		return version, err
	}

	return version, nil
}
