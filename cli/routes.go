package cli

import (
	"strconv"
	"strings"

	actx "go.hackfix.me/switchboard/app/context"
	aerrors "go.hackfix.me/switchboard/app/errors"
	"go.hackfix.me/switchboard/route"
)

// Routes prints the effective route table.
type Routes struct {
	YAML bool `help:"Output the route table in the route file format."`
}

// Run the routes command.
func (c *Routes) Run(appCtx *actx.Context) error {
	table, err := loadRoutes(appCtx)
	if err != nil {
		return err
	}

	if c.YAML {
		out, err := route.Dump(table)
		if err != nil {
			return aerrors.NewRuntimeError("failed encoding route table", err, "")
		}
		if _, err = appCtx.Stdout.Write(out); err != nil {
			return aerrors.NewRuntimeError("failed writing to stdout", err, "")
		}
		return nil
	}

	bindings := table.Bindings()
	if len(bindings) == 0 {
		return nil
	}

	data := make([][]string, 0, len(bindings))
	for i, b := range bindings {
		kind := "literal"
		if b.IsPattern {
			kind = "pattern"
		}
		var flags []string
		if b.Restricted {
			flags = append(flags, "restricted")
		}
		if b.Deprecated {
			flags = append(flags, "deprecated")
		}
		data = append(data, []string{
			strconv.Itoa(i + 1), kind, b.Pattern, string(b.Handler),
			strings.Join(b.AllowedMethods(), ","), b.ContentType,
			strconv.Itoa(b.Priority), strings.Join(flags, ","),
		})
	}

	header := []tableColumn{
		numCol("#"), col("Kind"), col("Route"), col("Handler"),
		col("Methods"), col("Content Type"), numCol("Priority"), col("Flags"),
	}
	if err = renderTable(header, data, appCtx.Stdout); err != nil {
		return aerrors.NewRuntimeError("failed rendering route table", err, "")
	}

	return nil
}
