// Package commands implements the widgetlab CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app carries state shared by every subcommand.
type app struct {
	debug  bool
	logger *zap.Logger
}

// NewRootCommand builds the widgetlab command tree.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(version, nil)
}

// newRootCommand lets tests inject a logger; a nil logger is built from the
// --debug flag before the subcommand runs.
func newRootCommand(version string, logger *zap.Logger) *cobra.Command {
	a := &app{logger: logger}

	root := &cobra.Command{
		Use:   "widgetlab",
		Short: "Live server-rendered widgets",
		Long: `widgetlab serves a counter, a checkout form wizard and a todo list whose
state lives on the server. Every interaction travels over a WebSocket and
the widget is re-rendered with livetemplate.

Scenario files (.lvt) drive the same widgets without a browser.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return nil
			}
			l, err := buildLogger(a.debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newServeCommand(a),
		newRunCommand(a),
		newWidgetsCommand(),
		newVersionCommand(version),
	)
	return root
}

func buildLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "widgetlab version %s\n", version)
		},
	}
}
