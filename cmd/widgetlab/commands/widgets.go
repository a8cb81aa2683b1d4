package commands

import (
	"github.com/spf13/cobra"

	"github.com/livetemplate/widgetlab/internal/runtime"
)

func newWidgetsCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "widgets",
		Short: "List registered widgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			widgets := runtime.Widgets()
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), widgets)
			}

			rows := make([][]string, 0, len(widgets))
			for _, w := range widgets {
				rows = append(rows, []string{w.Name, w.Title})
			}
			writeTable(cmd.OutOrStdout(), []string{"name", "title"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}
