package root

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eamonnk/agentd/pkg/server"
)

func newServeCmd() *cobra.Command {
	var (
		listen     string
		configPath string
		dataDir    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, configPath, dataDir)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			return server.New(a).Start(ctx, listen)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "address to listen on")
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentd.yaml", "path to the catalog file")
	cmd.Flags().StringVar(&dataDir, "data-dir", ".agentd", "directory for sqlite databases")

	return cmd
}
