package types

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Querier runs SQL queries, either directly on the database or inside a
// transaction.
type Querier interface {
	NewContext() context.Context
	TimeNow() time.Time
	ExecContext(ctx context.Context, sql string, arguments ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	// Tx runs fn inside a transaction. Nested calls reuse the outer transaction.
	Tx(ctx context.Context, fn func(Querier) error) error
}

// Filter is a WHERE clause with its placeholder arguments, and an optional
// row limit.
type Filter struct {
	Where string
	Args  []any
	Limit int
}

// NewFilter returns a filter without a limit.
func NewFilter(where string, args []any) *Filter {
	return &Filter{Where: where, Args: args}
}

// InFilter returns a filter matching rows where column is one of values.
func InFilter[T any](column string, values []T) *Filter {
	if len(values) == 0 {
		return NewFilter("1=0", nil)
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	return NewFilter(fmt.Sprintf("%s IN (%s)", column, placeholders), args)
}
