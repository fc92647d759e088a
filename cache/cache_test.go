package cache

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/switchboard/db"
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

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func newDBStore(t *testing.T, clk *testClock) *DBStore {
	t.Helper()

	rndID := make([]byte, 8)
	_, err := rand.Read(rndID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d, err := db.Open(ctx, fmt.Sprintf("file:cache-%x?mode=memory&cache=shared", rndID), clk.Now)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	logger := slog.New(slog.DiscardHandler)
	require.NoError(t, d.Init("v0.0.0-test", logger))

	return NewDBStore(d, logger)
}

func newMemoryStore(t *testing.T, clk *testClock, size int) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(size, clk.Now, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

func TestStores(t *testing.T) {
	t.Parallel()

	backends := []struct {
		name     string
		newStore func(*testing.T, *testClock) Store
	}{
		{name: "db", newStore: func(t *testing.T, c *testClock) Store { return newDBStore(t, c) }},
		{name: "memory", newStore: func(t *testing.T, c *testClock) Store { return newMemoryStore(t, c, 100) }},
	}

	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			t.Parallel()

			clk := newTestClock()
			s := be.newStore(t, clk)
			ctx := context.Background()

			get := func(key string) (string, bool) {
				data, ok, err := s.Get(ctx, key)
				require.NoError(t, err)
				return string(data), ok
			}

			require.NoError(t, s.Set(ctx, "members", []byte("list"), []string{"members%1", "members%2"}, 0))
			require.NoError(t, s.Set(ctx, "member-1", []byte("one"), []string{"members%1", "members%1"}, 0))
			require.NoError(t, s.Set(ctx, "news", []byte("news"), []string{"news%7"}, time.Minute))

			v, ok := get("members")
			assert.True(t, ok)
			assert.Equal(t, "list", v)

			// Unknown tags are a no-op, and flushing is idempotent.
			require.NoError(t, s.FlushByTag(ctx, "unknown%1"))
			require.NoError(t, s.FlushByTag(ctx, "members%2"))
			require.NoError(t, s.FlushByTag(ctx, "members%2"))

			_, ok = get("members")
			assert.False(t, ok)
			v, ok = get("member-1")
			assert.True(t, ok)
			assert.Equal(t, "one", v)

			// Replacing an entry drops its previous tags.
			require.NoError(t, s.Set(ctx, "member-1", []byte("uno"), []string{"lang%es"}, 0))
			require.NoError(t, s.FlushByTags(ctx, []string{"members%1"}))
			v, ok = get("member-1")
			assert.True(t, ok)
			assert.Equal(t, "uno", v)

			// Expiry.
			_, ok = get("news")
			assert.True(t, ok)
			clk.Add(time.Minute)
			_, ok = get("news")
			assert.False(t, ok)

			require.NoError(t, s.FlushByTags(ctx, []string{"lang%es", "news%7"}))
			_, ok = get("member-1")
			assert.False(t, ok)
		})
	}
}

func TestDBStoreFlushIsNoop(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	s := newDBStore(t, clk)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), nil, 0))
	require.NoError(t, s.Flush(ctx))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDBStoreCollectGarbage(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	s := newDBStore(t, clk)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("v"), []string{"a%1"}, time.Second))
	require.NoError(t, s.Set(ctx, "long", []byte("v"), []string{"a%1"}, time.Hour))
	require.NoError(t, s.Set(ctx, "forever", []byte("v"), nil, 0))

	clk.Add(time.Minute)
	n, err := s.CollectGarbage(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.CollectGarbage(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, ok, err := s.Get(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreEviction(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	s := newMemoryStore(t, clk, 2)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), []string{"t%1"}, 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), []string{"t%1"}, 0))
	require.NoError(t, s.Set(ctx, "c", []byte("3"), []string{"t%2"}, 0))
	assert.Equal(t, 2, s.Len())

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	// The evicted key is no longer indexed under its tag.
	s.mu.Lock()
	assert.Equal(t, map[string]struct{}{"b": {}}, s.tags["t%1"])
	s.mu.Unlock()

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.tags)
}

func TestLoader(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	s := newMemoryStore(t, clk, 10)
	l := NewLoader(s, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	var (
		calls   atomic.Int32
		release = make(chan struct{})
	)
	load := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("loaded"), nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := l.GetOrLoad(ctx, "k", []string{"t%1"}, 0, load)
			assert.NoError(t, err)
			results[i] = string(data)
		}()
	}

	// Give the goroutines a chance to pile up on the same key.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(10))
	for _, r := range results {
		assert.Equal(t, "loaded", r)
	}

	// Now served from the store.
	before := calls.Load()
	data, err := l.GetOrLoad(ctx, "k", nil, 0, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded", string(data))
	assert.Equal(t, before, calls.Load())

	_, err = l.GetOrLoad(ctx, "other", nil, 0, func(context.Context) ([]byte, error) {
		return nil, fmt.Errorf("backend down")
	})
	assert.EqualError(t, err, "failed loading cache entry: backend down")
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Key("a", "bc"), Key("a", "bc"))
	assert.NotEqual(t, Key("a", "bc"), Key("ab", "c"))
	assert.NotEmpty(t, Key())
	assert.Equal(t, "members%34", Tag("members", 34))
}
