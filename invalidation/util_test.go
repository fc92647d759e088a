package invalidation

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/switchboard/cache"
	"go.hackfix.me/switchboard/db"
)

type testEnv struct {
	db    *db.DB
	clock *clock.Mock
	store *cache.MemoryStore
	queue *Queue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rndID := make([]byte, 8)
	_, err := rand.Read(rndID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	d, err := db.Open(ctx, fmt.Sprintf("file:invalidation-%x?mode=memory&cache=shared", rndID), clk.Now)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	logger := slog.New(slog.DiscardHandler)
	require.NoError(t, d.Init("v0.0.0-test", logger))

	store, err := cache.NewMemoryStore(100, clk.Now, logger)
	require.NoError(t, err)

	return &testEnv{db: d, clock: clk, store: store, queue: NewQueue(d, store, logger)}
}

func (e *testEnv) cached(t *testing.T, key string) bool {
	t.Helper()
	_, ok, err := e.store.Get(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func (e *testEnv) set(t *testing.T, key string, tags ...string) {
	t.Helper()
	require.NoError(t, e.store.Set(context.Background(), key, []byte(key), tags, 0))
}
