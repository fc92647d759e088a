package models

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.hackfix.me/switchboard/db"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestDB(t *testing.T) (*db.DB, *testClock) {
	t.Helper()

	rndID := make([]byte, 8)
	_, err := rand.Read(rndID)
	require.NoError(t, err)

	clk := &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d, err := db.Open(ctx, fmt.Sprintf("file:models-%x?mode=memory&cache=shared", rndID), clk.Now)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, d.Init("v0.0.0-test", slog.New(slog.DiscardHandler)))

	return d, clk
}
