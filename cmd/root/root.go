// Package root defines the agentd command tree.
package root

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eamonnk/agentd/pkg/version"
)

var logLevel string

// NewRootCmd builds the agentd root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agentd",
		Short:         "Run AI agents, teams and workflows",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
