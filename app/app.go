package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"

	"go.hackfix.me/switchboard/app/config"
	actx "go.hackfix.me/switchboard/app/context"
	aerrors "go.hackfix.me/switchboard/app/errors"
	"go.hackfix.me/switchboard/cli"
	"go.hackfix.me/switchboard/db"
	"go.hackfix.me/switchboard/db/queries"
)

// dbFileName is the name of the SQLite database file in the data directory.
const dbFileName = "switchboard.db"

// Commands that can run before the database is initialized.
var preInitCommands = []string{"init", "routes"}

// App is the application.
type App struct {
	name string
	ctx  *actx.Context
	cli  *cli.CLI
	// the logging level is set via the CLI, if the app was initialized with the
	// WithLogger option.
	logLevel *slog.LevelVar
}

// New initializes a new application.
func New(name, configFilePath, dataDir string, opts ...Option) (*App, error) {
	version, err := actx.GetVersion()
	if err != nil {
		return nil, err
	}

	defaultCtx := &actx.Context{
		Ctx:     context.Background(),
		FS:      memoryfs.New(),
		Logger:  slog.Default(),
		TimeNow: time.Now,
		Stdin:   strings.NewReader(""),
		Stdout:  io.Discard,
		Stderr:  io.Discard,
		Version: version,
	}
	app := &App{name: name, ctx: defaultCtx}

	for _, opt := range opts {
		opt(app)
	}

	ver := fmt.Sprintf("%s %s", app.name, app.ctx.Version)
	app.cli, err = cli.New(app.ctx, configFilePath, dataDir, ver)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Run initializes the application environment and starts execution of the
// application.
func (app *App) Run(args []string) error {
	if err := app.cli.Parse(args); err != nil {
		return err
	}

	if app.logLevel != nil {
		app.logLevel.Set(app.cli.Log.Level)
		slog.SetLogLoggerLevel(app.cli.Log.Level)
	}

	if app.ctx.Config == nil {
		cfg := config.NewConfig(app.ctx.FS, app.ctx.ExpandPath(app.cli.ConfigFile))
		if err := cfg.Load(); err != nil {
			return aerrors.NewRuntimeError("failed loading configuration", err, "")
		}
		app.ctx.Config = cfg
	}
	app.ctx.Config.SetDefaults()
	app.cli.ApplyConfig(app.ctx.Config)

	if err := app.initDB(); err != nil {
		return err
	}

	cmd := app.cli.Command()
	if app.ctx.VersionInit == "" && (len(cmd) == 0 || !slices.Contains(preInitCommands, cmd[0])) {
		return aerrors.NewRuntimeError("Switchboard is not initialized", nil,
			fmt.Sprintf("run '%s init' first", app.name))
	}

	if err := app.cli.Execute(app.ctx); err != nil {
		return err
	}

	return nil
}

// initDB opens the database in the data directory, unless one was provided
// with WithDB, and reads the version it was initialized with.
func (app *App) initDB() error {
	if app.ctx.DB == nil {
		dataDir := app.ctx.ExpandPath(app.cli.DataDir)
		if err := app.ctx.FS.MkdirAll(dataDir, 0o700); err != nil {
			return aerrors.NewRuntimeError("failed creating data directory", err, "")
		}

		d, err := db.Open(app.ctx.Ctx, filepath.Join(dataDir, dbFileName), app.ctx.TimeNow)
		if err != nil {
			return aerrors.NewRuntimeError("failed opening database", err, "")
		}
		app.ctx.DB = d
	}

	version, err := queries.Version(app.ctx.DB.NewContext(), app.ctx.DB)
	if err != nil {
		return aerrors.NewRuntimeError("failed reading database version", err, "")
	}
	app.ctx.VersionInit = version.V

	return nil
}
