package cli

import (
	"fmt"

	actx "go.hackfix.me/switchboard/app/context"
	aerrors "go.hackfix.me/switchboard/app/errors"
)

// The Init command creates the Switchboard database and writes the
// configuration file with default values.
type Init struct{}

// Run the init command.
func (c *Init) Run(appCtx *actx.Context) error {
	if appCtx.VersionInit != "" {
		return aerrors.NewRuntimeError(
			fmt.Sprintf("Switchboard is already initialized with version %s", appCtx.VersionInit), nil, "")
	}

	err := appCtx.DB.Init(appCtx.Version.Semantic, appCtx.Logger)
	if err != nil {
		return aerrors.NewRuntimeError("failed initializing database", err, "")
	}

	if err = appCtx.Config.Save(); err != nil {
		return aerrors.NewRuntimeError("failed saving configuration", err, "")
	}
	appCtx.Logger.Info("wrote configuration file", "path", appCtx.Config.Path())

	return nil
}
