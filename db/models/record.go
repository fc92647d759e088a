package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.hackfix.me/switchboard/db/types"
)

// Record is a generic content record exposed by the built-in records handler.
// Records are identified by their table and numeric ID, and may be a
// translation of another record in the same table.
type Record struct {
	Table      string
	ID         uint64
	L10nParent uint64
	Data       map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r *Record) String() string {
	return fmt.Sprintf("%s:%d", r.Table, r.ID)
}

// Save stores the record in the database. If update is true, the data and
// l10n parent of an existing record are replaced.
func (r *Record) Save(ctx context.Context, d types.Querier, update bool) error {
	if r.Table == "" || r.ID == 0 {
		return types.InvalidInputError{Msg: "record table and ID must be set"}
	}

	data := r.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed encoding record data: %w", err)
	}

	timeNow := d.TimeNow().UTC().Truncate(time.Second)
	if update {
		res, err := d.ExecContext(ctx, `UPDATE records
			SET l10n_parent = ?, data = ?, updated_at = ?
			WHERE table_name = ? AND id = ?`,
			r.L10nParent, string(dataJSON), timeNow.Unix(), r.Table, r.ID)
		if err != nil {
			return types.Err("record", r.String(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed getting affected rows: %w", err)
		}
		if n == 0 {
			return types.NoResultError{ModelName: "record", ID: r.String()}
		}
		r.UpdatedAt = timeNow

		return nil
	}

	_, err = d.ExecContext(ctx, `INSERT INTO records
		(table_name, id, l10n_parent, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Table, r.ID, r.L10nParent, string(dataJSON), timeNow.Unix(), timeNow.Unix())
	if err != nil {
		return types.Err("record", r.String(), err)
	}
	r.CreatedAt = timeNow
	r.UpdatedAt = timeNow

	return nil
}

// Load the record identified by Table and ID from the database.
func (r *Record) Load(ctx context.Context, d types.Querier) error {
	if r.Table == "" || r.ID == 0 {
		return types.InvalidInputError{Msg: "record table and ID must be set"}
	}

	records, err := Records(ctx, d,
		types.NewFilter("table_name = ? AND id = ?", []any{r.Table, r.ID}))
	if err != nil {
		return err
	}

	if len(records) == 0 {
		return types.NoResultError{ModelName: "record", ID: r.String()}
	}
	*r = *records[0]

	return nil
}

// Delete removes the record from the database. It returns an error if the
// record doesn't exist.
func (r *Record) Delete(ctx context.Context, d types.Querier) error {
	if r.Table == "" || r.ID == 0 {
		return types.InvalidInputError{Msg: "record table and ID must be set"}
	}

	res, err := d.ExecContext(ctx,
		`DELETE FROM records WHERE table_name = ? AND id = ?`, r.Table, r.ID)
	if err != nil {
		return types.Err("record", r.String(), err)
	}

	var n int64
	if n, err = res.RowsAffected(); err != nil {
		return fmt.Errorf("failed getting affected rows: %w", err)
	} else if n == 0 {
		return types.NoResultError{ModelName: "record", ID: r.String()}
	}

	return nil
}

// Records returns one or more records from the database, ordered by table and
// ID. An optional filter can be passed to limit the results.
func Records(ctx context.Context, d types.Querier, filter *types.Filter) (records []*Record, rerr error) {
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

	query := fmt.Sprintf(`SELECT table_name, id, l10n_parent, data, created_at, updated_at
		FROM records
		WHERE %s
		ORDER BY table_name ASC, id ASC %s`, where, limit)

	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.LoadError{ModelName: "records", Err: err}
	}
	defer func() {
		if err = rows.Close(); err != nil {
			rerr = fmt.Errorf("failed closing record rows: %w", err)
		}
	}()

	records = make([]*Record, 0)
	for rows.Next() {
		var (
			r                    Record
			dataJSON             string
			createdAt, updatedAt int64
		)
		err = rows.Scan(&r.Table, &r.ID, &r.L10nParent, &dataJSON, &createdAt, &updatedAt)
		if err != nil {
			return nil, types.ScanError{ModelName: "record", Err: err}
		}
		if err = json.Unmarshal([]byte(dataJSON), &r.Data); err != nil {
			return nil, types.ScanError{ModelName: "record", Err: err}
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		records = append(records, &r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating over record rows: %w", err)
	}

	return records, nil
}
