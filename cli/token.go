package cli

import (
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	actx "go.hackfix.me/switchboard/app/context"
	aerrors "go.hackfix.me/switchboard/app/errors"
	"go.hackfix.me/switchboard/crypto"
	"go.hackfix.me/switchboard/db/models"
)

// The Token command manages the access tokens accepted by the built-in
// authentication handler.
type Token struct {
	Add struct {
		Subject string `arg:"" help:"The identity the token authenticates as."`
		Demo    bool   `help:"Authenticate with the restricted demo identity."`
		//nolint:lll // Long struct tags are unavoidable.
		Expiration time.Time         `type:"expiration" help:"Token expiration as a duration from now or an RFC3339 timestamp, e.g. 30d or %s. Tokens don't expire by default."`
		Claim      map[string]string `help:"Additional identity claim in key=value format. Can be repeated."`
	} `cmd:"" help:"Create a new access token."`
	List struct {
		All bool `help:"Also include expired tokens."`
	} `cmd:"" aliases:"ls" help:"List access tokens."`
	Remove struct {
		ID []string `arg:"" help:"Unique token IDs."`
	} `cmd:"" aliases:"rm" help:"Delete one or more access tokens."`
}

// Run the token command.
func (c *Token) Run(kctx *kong.Context, appCtx *actx.Context) error {
	dbCtx := appCtx.DB.NewContext()

	switch kctx.Selected().Name {
	case "add":
		token, err := crypto.NewToken()
		if err != nil {
			return aerrors.NewRuntimeError("failed generating token", err, "")
		}

		at := &models.AccessToken{
			TokenHash: crypto.HashToken(token),
			Subject:   c.Add.Subject,
			Demo:      c.Add.Demo,
			Claims:    make(map[string]any, len(c.Add.Claim)),
		}
		for k, v := range c.Add.Claim {
			at.Claims[k] = v
		}
		if !c.Add.Expiration.IsZero() {
			at.ExpiresAt = sql.Null[time.Time]{V: c.Add.Expiration.UTC(), Valid: true}
		}

		if err = at.Save(dbCtx, appCtx.DB, false); err != nil {
			return aerrors.NewRuntimeError("failed saving token to the database", err, "")
		}

		fmt.Fprintf(appCtx.Stdout, "ID: %s\nToken: %s\nExpires: %s\n",
			at.ID, token, formatExpiration(at, appCtx.TimeNow().UTC()))

	case "list":
		timeNow := appCtx.TimeNow().UTC()
		tokens, err := models.AccessTokens(dbCtx, appCtx.DB, nil)
		if err != nil {
			return aerrors.NewRuntimeError("failed listing tokens", err, "")
		}

		data := [][]string{}
		for _, at := range tokens {
			if at.Expired(timeNow) && !c.List.All {
				continue
			}
			data = append(data, []string{
				at.ID, at.Subject, strconv.FormatBool(at.Demo), formatClaims(at.Claims),
				at.CreatedAt.Local().Format(time.DateTime), formatExpiration(at, timeNow),
			})
		}

		if len(data) > 0 {
			header := cols("ID", "Subject", "Demo", "Claims", "Created", "Expiration")
			if err = renderTable(header, data, appCtx.Stdout); err != nil {
				return aerrors.NewRuntimeError("failed rendering token table", err, "")
			}
		}

	case "remove":
		for _, id := range c.Remove.ID {
			at := &models.AccessToken{ID: id}
			if err := at.Delete(dbCtx, appCtx.DB); err != nil {
				return aerrors.NewRuntimeError("failed deleting token", err, "")
			}
		}
	}

	return nil
}

func formatExpiration(at *models.AccessToken, timeNow time.Time) string {
	if !at.ExpiresAt.Valid {
		return "never"
	}

	timeLeft := at.ExpiresAt.V.Sub(timeNow)
	if timeLeft <= 0 {
		return fmt.Sprintf("%s (expired)", at.ExpiresAt.V.Local().Format(time.DateTime))
	}

	return fmt.Sprintf("%s (%s)", at.ExpiresAt.V.Local().Format(time.DateTime), timeLeft.Round(time.Second))
}

func formatClaims(claims map[string]any) string {
	pairs := make([]string, 0, len(claims))
	for _, k := range slices.Sorted(maps.Keys(claims)) {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, claims[k]))
	}
	return strings.Join(pairs, ",")
}
