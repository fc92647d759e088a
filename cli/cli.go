package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alecthomas/kong"

	"go.hackfix.me/switchboard/app/config"
	actx "go.hackfix.me/switchboard/app/context"
)

// CLI is the command line interface of Switchboard.
type CLI struct {
	Init   Init   `kong:"cmd,help='Create the Switchboard database and configuration.'"`
	Serve  Serve  `kong:"cmd,help='Start the web server.'"`
	Routes Routes `kong:"cmd,help='Print the route table in evaluation order.'"`
	Token  Token  `kong:"cmd,help='Manage access tokens.'"`
	Cache  Cache  `kong:"cmd,help='Manage the cache and its invalidation queue.'"`

	Log struct {
		Level slog.Level `enum:"DEBUG,INFO,WARN,ERROR" default:"INFO" help:"Set the app logging level."`
	} `embed:"" prefix:"log-"`
	// The configuration file is managed by the config package, so
	// kong.ConfigFlag isn't used. $VAR references in paths are expanded.
	ConfigFile string           `kong:"default='${configFile}',help='Path to the Switchboard configuration file.'"`
	DataDir    string           `kong:"default='${dataDir}',help='Path to the directory where the Switchboard database is stored.'"`
	Version    kong.VersionFlag `kong:"help='Output version and exit.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// New initializes the command-line interface.
func New(appCtx *actx.Context, configFilePath, dataDir, version string) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name("switchboard"),
		kong.Description("Request dispatch service with tag based cache invalidation."),
		kong.UsageOnError(),
		kong.DefaultEnvars("SWITCHBOARD"),
		kong.NamedMapper("expiration", &ExpirationMapper{timeNow: appCtx.TimeNow}),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.ValueFormatter(helpFormatter(appCtx.TimeNow)),
		kong.Vars{
			"configFile": configFilePath,
			"dataDir":    dataDir,
			"version":    version,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}
	kparser.Stdout = appCtx.Stdout
	kparser.Stderr = appCtx.Stderr
	c.kong = kparser

	return c, nil
}

// helpFormatter renders an example expiration of tomorrow's midnight in the
// help of expiration flags.
func helpFormatter(timeNow func() time.Time) kong.HelpValueFormatter {
	return func(value *kong.Value) string {
		if value.Name != "expiration" {
			return value.Help
		}
		now := timeNow()
		y, m, d := now.Date()
		example := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
		return fmt.Sprintf(value.OrigHelp, example.Format(time.RFC3339))
	}
}

// Execute runs the parsed command. Parse must be called before this method.
func (c *CLI) Execute(appCtx *actx.Context) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}

	//nolint:wrapcheck // Commands return RuntimeErrors.
	return c.kctx.Run(appCtx)
}

// Parse the given command line arguments. This method must be called before
// Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx

	return nil
}

// Command returns the names of the selected command and its parents, starting
// with the top-level command.
func (c *CLI) Command() []string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	var names []string
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			names = append(names, p.Command.Name)
		}
	}

	return names
}

// ApplyConfig fills in CLI values that weren't given on the command line from
// the configuration.
func (c *CLI) ApplyConfig(cfg *config.Config) {
	if c.Serve.Address == "" && cfg.Server.Address.Valid {
		c.Serve.Address = cfg.Server.Address.V
	}
}
