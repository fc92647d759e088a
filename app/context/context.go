// Package context holds the state shared by the app and cli packages.
package context

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/switchboard/app/config"
	"go.hackfix.me/switchboard/db"
)

// Environment gives read access to process environment variables.
type Environment interface {
	Get(key string) string
}

// Context contains common objects used by the application. It is passed around
// the application to avoid direct dependencies on external systems, and make
// testing easier.
type Context struct {
	Ctx     context.Context  // global context
	FS      vfs.FileSystem   // filesystem
	Env     Environment      // process environment
	Logger  *slog.Logger     // global logger
	TimeNow func() time.Time // returns the current system time

	// Standard streams
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Config *config.Config
	DB     *db.DB

	// Metadata
	Version *VersionInfo
	// VersionInit is the app version the database was initialized with. It's
	// empty if the database wasn't initialized yet.
	VersionInit string
}

// ExpandPath replaces ${VAR} and $VAR references in path with values from the
// environment. Unset variables expand to an empty string.
func (c *Context) ExpandPath(path string) string {
	if c.Env == nil {
		return path
	}
	return os.Expand(path, c.Env.Get)
}
