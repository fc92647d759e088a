package handlers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/switchboard/crypto"
	"go.hackfix.me/switchboard/db/models"
	"go.hackfix.me/switchboard/dispatch"
)

func TestTokenAuth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	tokens := []struct {
		token string
		at    *models.AccessToken
	}{
		{
			token: "editor-token",
			at: &models.AccessToken{
				Subject: "alice", Claims: map[string]any{"role": "editor", "success": false},
			},
		},
		{
			token: "demo-token",
			at:    &models.AccessToken{Subject: "guest", Demo: true},
		},
		{
			token: "old-token",
			at: &models.AccessToken{
				Subject:   "bob",
				ExpiresAt: sql.Null[time.Time]{V: env.clock.Now().Add(time.Hour), Valid: true},
			},
		},
	}
	for _, tok := range tokens {
		tok.at.TokenHash = crypto.HashToken(tok.token)
		require.NoError(t, tok.at.Save(ctx, env.db, false))
	}

	// Let the last token expire.
	env.clock.Add(2 * time.Hour)

	h := NewTokenAuth(env.db, env.logger)
	require.NoError(t, h.Initialize(ctx))

	testCases := []struct {
		name       string
		credential string
		exp        map[string]any
	}{
		{
			name:       "ok/claims",
			credential: "editor-token",
			exp:        map[string]any{"success": true, "subject": "alice", "demo": false, "role": "editor"},
		},
		{
			name:       "ok/demo",
			credential: "demo-token",
			exp:        map[string]any{"success": true, "subject": "guest", "demo": true},
		},
		{
			name:       "err/expired",
			credential: "old-token",
			exp:        map[string]any{"success": false},
		},
		{
			name:       "err/unknown",
			credential: "nope",
			exp:        map[string]any{"success": false},
		},
		{
			name:       "err/empty",
			credential: "",
			exp:        map[string]any{"success": false},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res, err := h.Handle(ctx, dispatch.AuthenticateRoute, tc.credential, dispatch.Params{})
			require.NoError(t, err)
			assert.Equal(t, tc.exp, res)
		})
	}

	docs := h.Documentation(dispatch.AuthenticateRoute)
	require.Len(t, docs, 1)
	assert.Equal(t, "/authenticate", docs[0].Path)
}
