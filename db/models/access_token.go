package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nrednav/cuid2"

	"go.hackfix.me/switchboard/db/types"
)

// AccessToken is a credential accepted by the built-in authentication handler.
// Only the hash of the token is stored.
type AccessToken struct {
	ID        string
	CreatedAt time.Time
	TokenHash string
	Subject   string
	Demo      bool
	// Claims are additional identity attributes returned on successful
	// authentication.
	Claims    map[string]any
	ExpiresAt sql.Null[time.Time]
}

// Expired returns true if the token has an expiry time that is not after t.
func (at *AccessToken) Expired(t time.Time) bool {
	return at.ExpiresAt.Valid && !at.ExpiresAt.V.After(t)
}

// Save stores the token in the database. If update is true, the subject, demo
// flag, claims and expiry of an existing token are updated.
func (at *AccessToken) Save(ctx context.Context, d types.Querier, update bool) error {
	if at.Subject == "" {
		return types.InvalidInputError{Msg: "token subject must not be empty"}
	}

	claims := at.Claims
	if claims == nil {
		claims = map[string]any{}
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed encoding token claims: %w", err)
	}

	var expiresAt sql.Null[int64]
	if at.ExpiresAt.Valid {
		expiresAt = sql.Null[int64]{V: at.ExpiresAt.V.UTC().Unix(), Valid: true}
	}

	if update {
		if at.ID == "" {
			return types.InvalidInputError{Msg: "token ID must be set"}
		}
		res, err := d.ExecContext(ctx, `UPDATE access_tokens
			SET subject = ?, demo = ?, claims = ?, expires_at = ?
			WHERE id = ?`,
			at.Subject, at.Demo, string(claimsJSON), expiresAt, at.ID)
		if err != nil {
			return types.Err("access token", fmt.Sprintf("ID '%s'", at.ID), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed getting affected rows: %w", err)
		}
		if n == 0 {
			return types.NoResultError{ModelName: "access token", ID: fmt.Sprintf("ID '%s'", at.ID)}
		}

		return nil
	}

	if at.TokenHash == "" {
		return types.InvalidInputError{Msg: "token hash must not be empty"}
	}
	if at.ID == "" {
		at.ID = cuid2.Generate()
	}
	at.CreatedAt = d.TimeNow().UTC().Truncate(time.Second)

	_, err = d.ExecContext(ctx, `INSERT INTO access_tokens
		(id, created_at, token_hash, subject, demo, claims, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		at.ID, at.CreatedAt.Unix(), at.TokenHash, at.Subject, at.Demo,
		string(claimsJSON), expiresAt)
	if err != nil {
		return types.Err("access token", fmt.Sprintf("subject '%s'", at.Subject), err)
	}

	return nil
}

// Load the token from the database. Either the token ID or TokenHash must be
// set for the lookup.
func (at *AccessToken) Load(ctx context.Context, d types.Querier) error {
	filter, filterStr, err := at.filter()
	if err != nil {
		return err
	}

	tokens, err := AccessTokens(ctx, d, filter)
	if err != nil {
		return err
	}

	if len(tokens) == 0 {
		return types.NoResultError{ModelName: "access token", ID: filterStr}
	}
	*at = *tokens[0]

	return nil
}

// Delete removes the token from the database. Either the token ID or TokenHash
// must be set for the lookup.
func (at *AccessToken) Delete(ctx context.Context, d types.Querier) error {
	filter, filterStr, err := at.filter()
	if err != nil {
		return err
	}

	res, err := d.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM access_tokens WHERE %s`, filter.Where), filter.Args...)
	if err != nil {
		return types.Err("access token", filterStr, err)
	}

	var n int64
	if n, err = res.RowsAffected(); err != nil {
		return fmt.Errorf("failed getting affected rows: %w", err)
	} else if n == 0 {
		return types.NoResultError{ModelName: "access token", ID: filterStr}
	}

	return nil
}

func (at *AccessToken) filter() (*types.Filter, string, error) {
	switch {
	case at.ID != "":
		return types.NewFilter("id = ?", []any{at.ID}), fmt.Sprintf("ID '%s'", at.ID), nil
	case at.TokenHash != "":
		// Don't leak the hash in error messages.
		return types.NewFilter("token_hash = ?", []any{at.TokenHash}), "the given token", nil
	default:
		return nil, "", types.InvalidInputError{Msg: "either token ID or TokenHash must be set"}
	}
}

// AccessTokens returns one or more tokens from the database, ordered by
// creation time. An optional filter can be passed to limit the results.
func AccessTokens(
	ctx context.Context, d types.Querier, filter *types.Filter,
) (tokens []*AccessToken, rerr error) {
	where := "1=1"
	args := []any{}
	if filter != nil {
		where = filter.Where
		args = filter.Args
	}

	query := fmt.Sprintf(`SELECT id, created_at, token_hash, subject, demo, claims, expires_at
		FROM access_tokens
		WHERE %s
		ORDER BY created_at ASC, id ASC`, where)

	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.LoadError{ModelName: "access tokens", Err: err}
	}
	defer func() {
		if err = rows.Close(); err != nil {
			rerr = fmt.Errorf("failed closing access token rows: %w", err)
		}
	}()

	tokens = make([]*AccessToken, 0)
	for rows.Next() {
		var (
			at         AccessToken
			createdAt  int64
			claimsJSON string
			expiresAt  sql.Null[int64]
		)
		err = rows.Scan(&at.ID, &createdAt, &at.TokenHash, &at.Subject, &at.Demo,
			&claimsJSON, &expiresAt)
		if err != nil {
			return nil, types.ScanError{ModelName: "access token", Err: err}
		}

		at.CreatedAt = time.Unix(createdAt, 0).UTC()
		if expiresAt.Valid {
			at.ExpiresAt = sql.Null[time.Time]{V: time.Unix(expiresAt.V, 0).UTC(), Valid: true}
		}
		if err = json.Unmarshal([]byte(claimsJSON), &at.Claims); err != nil {
			return nil, types.ScanError{ModelName: "access token", Err: err}
		}

		tokens = append(tokens, &at)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating over access token rows: %w", err)
	}

	return tokens, nil
}
