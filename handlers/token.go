package handlers

import (
	"context"
	"errors"
	"log/slog"

	"go.hackfix.me/switchboard/crypto"
	"go.hackfix.me/switchboard/db/models"
	"go.hackfix.me/switchboard/db/types"
	"go.hackfix.me/switchboard/dispatch"
)

// TokenAuthID is the handler ID of TokenAuth.
const TokenAuthID = "token-auth"

// TokenAuth authenticates credentials against the access tokens stored in
// the database. It's meant to be bound to the /authenticate route.
type TokenAuth struct {
	d      types.Querier
	logger *slog.Logger
}

var _ dispatch.Handler = (*TokenAuth)(nil)

// NewTokenAuth returns a new TokenAuth handler.
func NewTokenAuth(d types.Querier, logger *slog.Logger) *TokenAuth {
	return &TokenAuth{d: d, logger: logger.With("handler", TokenAuthID)}
}

// Initialize implements dispatch.Handler.
func (h *TokenAuth) Initialize(context.Context) error { return nil }

// Handle implements dispatch.Handler. The subroute is the presented
// credential. Unknown and expired tokens result in success=false.
func (h *TokenAuth) Handle(ctx context.Context, _, credential string, _ dispatch.Params) (any, error) {
	failure := map[string]any{"success": false}
	if credential == "" {
		return failure, nil
	}

	at := &models.AccessToken{TokenHash: crypto.HashToken(credential)}
	if err := at.Load(ctx, h.d); err != nil {
		if errors.As(err, &types.NoResultError{}) {
			return failure, nil
		}
		return nil, err
	}

	if at.Expired(h.d.TimeNow()) {
		h.logger.Debug("expired access token", "token_id", at.ID)
		return failure, nil
	}

	res := make(map[string]any, len(at.Claims)+3)
	for k, v := range at.Claims {
		res[k] = v
	}
	res["success"] = true
	res["subject"] = at.Subject
	res["demo"] = at.Demo

	return res, nil
}

// Documentation implements dispatch.Handler.
func (h *TokenAuth) Documentation(route string) []dispatch.Doc {
	return []dispatch.Doc{{
		Method: "GET",
		Path:   route,
		Description: "Validates the access token passed in the authentication header. " +
			"Called internally for every request carrying a credential.",
		Response: `{"success": true, "subject": "...", "demo": false}`,
	}}
}
