package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/switchboard/app/config"
	actx "go.hackfix.me/switchboard/app/context"
	"go.hackfix.me/switchboard/db"
)

// Option configures the application on creation.
type Option func(*App)

// WithConfig uses cfg instead of loading the configuration file.
func WithConfig(cfg *config.Config) Option {
	return func(app *App) {
		app.ctx.Config = cfg
	}
}

// WithContext sets the context that stops the application when it's done.
func WithContext(ctx context.Context) Option {
	return func(app *App) {
		app.ctx.Ctx = ctx
	}
}

// WithDB uses d instead of opening the database in the data directory.
func WithDB(d *db.DB) Option {
	return func(app *App) {
		app.ctx.DB = d
	}
}

// WithEnv sets the environment used to expand paths.
func WithEnv(env actx.Environment) Option {
	return func(app *App) {
		app.ctx.Env = env
	}
}

// WithFDs sets the standard streams. WithLogger must come after this option
// for logs to be written to stderr.
func WithFDs(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(app *App) {
		app.ctx.Stdin = stdin
		app.ctx.Stdout = stdout
		app.ctx.Stderr = stderr
	}
}

// WithFS sets the filesystem the configuration, route file and database are
// read from.
func WithFS(fs vfs.FileSystem) Option {
	return func(app *App) {
		app.ctx.FS = fs
	}
}

// WithLogger logs to stderr with tint, colorized if color is true. The level
// is set from the --log-level flag when the app runs.
func WithLogger(color bool) Option {
	return func(app *App) {
		app.logLevel = &slog.LevelVar{}
		app.ctx.Logger = slog.New(tint.NewHandler(app.ctx.Stderr, &tint.Options{
			Level:      app.logLevel,
			NoColor:    !color,
			TimeFormat: "2006-01-02 15:04:05.000",
		}))
		slog.SetDefault(app.ctx.Logger)
	}
}

// WithTimeNow sets the clock of the application.
func WithTimeNow(timeNowFn func() time.Time) Option {
	return func(app *App) {
		app.ctx.TimeNow = timeNowFn
	}
}
