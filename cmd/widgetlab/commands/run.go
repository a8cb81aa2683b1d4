package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetemplate/widgetlab"
)

func newRunCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "run <file.lvt>...",
		Short: "Run widget scenarios",
		Long: `Runs each scenario against a fresh widget and prints the final state.

Exits non-zero when any expectation fails or a file does not parse.`,
		Example: `  widgetlab run testdata/scenarios/checkout.lvt
  widgetlab run scenarios/*.lvt --format=json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown format %q (use table or json)", format)
			}
			return runScenarios(cmd, args, format, a.logger)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func runScenarios(cmd *cobra.Command, files []string, format string, logger *zap.Logger) error {
	out := cmd.OutOrStdout()
	var (
		results []*widgetlab.Result
		failed  int
	)

	for _, file := range files {
		res, err := widgetlab.RunScriptFile(cmd.Context(), file, logger)
		if err != nil {
			var pe *widgetlab.ParseError
			if !errors.As(err, &pe) {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), pe.Format())
			failed++
			continue
		}
		if !res.Passed() {
			failed++
		}
		results = append(results, res)
		if format == "table" {
			printResult(out, res)
		}
	}

	if format == "json" {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(files))
	}
	return nil
}

func printResult(w io.Writer, res *widgetlab.Result) {
	status := "✅ PASS"
	if !res.Passed() {
		status = "❌ FAIL"
	}
	fmt.Fprintf(w, "%s %s (%s, %d steps)\n", status, res.File, res.Widget, res.Steps)
	for _, f := range res.Failures {
		fmt.Fprintf(w, "   %s\n", f)
	}
	if len(res.State) > 0 {
		fmt.Fprintln(w)
		writeTable(w, []string{"path", "value"}, flatten(res.State))
	}
	fmt.Fprintln(w)
}
