package handlers

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.hackfix.me/switchboard/cache"
	"go.hackfix.me/switchboard/db"
	"go.hackfix.me/switchboard/invalidation"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db     *db.DB
	clock  *testClock
	store  *cache.MemoryStore
	queue  *invalidation.Queue
	logger *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rndID := make([]byte, 8)
	_, err := rand.Read(rndID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clk := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	d, err := db.Open(ctx, fmt.Sprintf("file:handlers-%x?mode=memory&cache=shared", rndID), clk.Now)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	logger := slog.New(slog.DiscardHandler)
	require.NoError(t, d.Init("v0.0.0-test", logger))

	store, err := cache.NewMemoryStore(100, clk.Now, logger)
	require.NoError(t, err)

	return &testEnv{
		db: d, clock: clk, store: store, logger: logger,
		queue: invalidation.NewQueue(d, store, logger),
	}
}
