package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alecthomas/kong"

	"go.hackfix.me/switchboard/app/config"
	actx "go.hackfix.me/switchboard/app/context"
	aerrors "go.hackfix.me/switchboard/app/errors"
	"go.hackfix.me/switchboard/invalidation"
)

// The Cache command manages the cache and its invalidation queue.
type Cache struct {
	Enqueue struct {
		Tags []string `arg:"" help:"Cache tags, e.g. pages%12."`
	} `cmd:"" help:"Queue cache tags for deferred invalidation."`
	Queue struct{} `cmd:"" aliases:"ls" help:"List queued cache tags."`
	Sweep struct {
		All bool `help:"Flush all queued tags, ignoring the grace period."`
	} `cmd:"" help:"Flush queued cache tags whose grace period has passed."`
	Flush struct {
		Tags []string `arg:"" help:"Cache tags, e.g. pages%12."`
	} `cmd:"" help:"Immediately flush cached entries by tag."`
}

// Run the cache command.
func (c *Cache) Run(kctx *kong.Context, appCtx *actx.Context) error {
	dbCtx := appCtx.DB.NewContext()
	cacheCfg := appCtx.Config.Cache

	action := kctx.Selected().Name
	if (action == "sweep" || action == "flush") && cacheCfg.Backend.V == config.CacheBackendMemory {
		return aerrors.NewRuntimeError(
			fmt.Sprintf("can't %s the memory cache from outside the server process", action), nil,
			"the running server sweeps the queue every sweep_interval")
	}

	store, err := newCacheStore(appCtx)
	if err != nil {
		return err
	}
	queue := invalidation.NewQueue(appCtx.DB, store, appCtx.Logger)

	switch action {
	case "enqueue":
		for _, tag := range c.Enqueue.Tags {
			if _, err = queue.Enqueue(dbCtx, tag); err != nil {
				return aerrors.NewRuntimeError(fmt.Sprintf("failed enqueuing tag '%s'", tag), err, "")
			}
		}

	case "queue":
		entries, err := queue.Pending(dbCtx)
		if err != nil {
			return aerrors.NewRuntimeError("failed listing queued tags", err, "")
		}

		timeNow := appCtx.TimeNow().UTC()
		data := make([][]string, 0, len(entries))
		for _, e := range entries {
			due := "now"
			if dueIn := e.EnqueuedAt.Add(cacheCfg.GracePeriod.V).Sub(timeNow); dueIn > 0 {
				due = dueIn.Round(time.Second).String()
			}
			data = append(data, []string{
				strconv.FormatUint(e.ID, 10), e.Tag,
				e.EnqueuedAt.Local().Format(time.DateTime), due,
			})
		}

		if len(data) > 0 {
			header := []tableColumn{numCol("ID"), col("Tag"), col("Enqueued"), col("Due")}
			if err = renderTable(header, data, appCtx.Stdout); err != nil {
				return aerrors.NewRuntimeError("failed rendering queue table", err, "")
			}
		}

	case "sweep":
		grace := cacheCfg.GracePeriod.V
		if c.Sweep.All {
			grace = 0
		}
		res, err := queue.Sweep(dbCtx, appCtx.TimeNow(), grace)
		if err != nil {
			return aerrors.NewRuntimeError("failed sweeping the invalidation queue", err, "")
		}
		appCtx.Logger.Info("swept invalidation queue", "tags", len(res.Tags), "deleted", res.Deleted)

	case "flush":
		if err = store.FlushByTags(dbCtx, c.Flush.Tags); err != nil {
			return aerrors.NewRuntimeError("failed flushing cache tags", err, "")
		}
		appCtx.Logger.Info("flushed cache tags", "tags", c.Flush.Tags)
	}

	return nil
}
