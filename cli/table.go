package cli

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// tableColumn describes a single column of CLI table output.
type tableColumn struct {
	name    string
	numeric bool
}

func col(name string) tableColumn    { return tableColumn{name: name} }
func numCol(name string) tableColumn { return tableColumn{name: name, numeric: true} }

func cols(names ...string) []tableColumn {
	out := make([]tableColumn, len(names))
	for i, n := range names {
		out[i] = col(n)
	}
	return out
}

// renderTable writes rows as a borderless table. Numeric columns are right
// aligned, everything else is left aligned and never wrapped.
func renderTable(columns []tableColumn, rows [][]string, w io.Writer) error {
	header := make([]string, len(columns))
	align := make([]tw.Align, len(columns))
	for i, c := range columns {
		header[i] = c.name
		align[i] = tw.AlignLeft
		if c.numeric {
			align[i] = tw.AlignRight
		}
	}

	noLines := tw.Lines{
		ShowHeaderLine: tw.Off,
		ShowFooterLine: tw.Off,
		ShowTop:        tw.Off,
		ShowBottom:     tw.Off,
	}
	noSeparators := tw.Separators{
		ShowHeader:     tw.Off,
		ShowFooter:     tw.Off,
		BetweenRows:    tw.Off,
		BetweenColumns: tw.Off,
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders:  tw.BorderNone,
			Symbols:  tw.NewSymbols(tw.StyleASCII),
			Settings: tw.Settings{Lines: noLines, Separators: noSeparators},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft, PerColumn: align},
			},
			Row: tw.CellConfig{
				Formatting:   tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:    tw.CellAlignment{Global: tw.AlignLeft, PerColumn: align},
				ColMaxWidths: tw.CellWidth{Global: 64},
			},
		}),
	)

	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return err //nolint:wrapcheck // This is wrapped by the caller.
	}

	return table.Render() //nolint:wrapcheck // This is wrapped by the caller.
}
