package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// newListCmd creates the command that prints the registered tests.
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered tests",
		Run: func(cmd *cobra.Command, args []string) {
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{
				text.FgHiCyan.Sprint("TEST"),
				text.FgHiCyan.Sprint("DESCRIPTION"),
			})
			for _, tst := range registry.All() {
				t.AppendRow(table.Row{tst.Name(), tst.Description()})
			}
			t.Render()
		},
	}
}
