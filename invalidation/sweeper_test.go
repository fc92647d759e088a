package invalidation

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/switchboard/db/models"
	"go.hackfix.me/switchboard/db/types"
)

type chanObserver struct {
	sweeps chan SweepResult
}

func (o *chanObserver) ObserveSweep(res SweepResult, _ time.Duration, err error) {
	if err == nil {
		o.sweeps <- res
	}
}

func TestSweeperRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.set(t, "news", "news%3")
	_, err := env.queue.Enqueue(ctx, "news%3")
	require.NoError(t, err)

	obs := &chanObserver{sweeps: make(chan SweepResult, 100)}
	s := NewSweeper(env.queue, slog.New(slog.DiscardHandler),
		WithClock(env.clock),
		WithInterval(time.Minute),
		WithGracePeriod(3*time.Minute),
		WithObserver(obs),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	var (
		swept   SweepResult
		elapsed time.Duration
		start   = env.clock.Now()
	)
	deadline := time.After(5 * time.Second)
loop:
	for {
		env.clock.Add(time.Minute)
		select {
		case res := <-obs.sweeps:
			elapsed = env.clock.Since(start)
			if res.Deleted > 0 {
				swept = res
				break loop
			}
		case <-time.After(20 * time.Millisecond):
			// The ticker may not be registered yet.
		case <-deadline:
			t.Fatal("timed out waiting for sweep")
		}
	}

	cancel()
	wg.Wait()

	assert.Equal(t, []string{"news%3"}, swept.Tags)
	assert.GreaterOrEqual(t, elapsed, 3*time.Minute)
	assert.False(t, env.cached(t, "news"))

	count, err := models.CountCacheQueueEntries(context.Background(), env.db)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSweeperRunDisabled(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	s := NewSweeper(env.queue, slog.New(slog.DiscardHandler), WithInterval(0))

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper did not return")
	}
}

func TestSweeperRunOnceError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.queue.Enqueue(ctx, "news%3")
	require.NoError(t, err)

	// Close the database so that the sweep fails.
	require.NoError(t, env.db.Close())

	s := NewSweeper(env.queue, slog.New(slog.DiscardHandler), WithClock(env.clock), WithGracePeriod(0))
	_, err = s.RunOnce(ctx)
	var lerr types.LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "cache queue entries", lerr.ModelName)
}
