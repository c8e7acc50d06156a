package root

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eamonnk/agentd/pkg/app"
	"github.com/eamonnk/agentd/pkg/runtime"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		dataDir    string
		entityType string
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "run <entity-id> <message>",
		Short: "Run one turn against an agent or team and stream the answer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, configPath, dataDir)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			sess, events, err := a.RunTurn(ctx, app.TurnRequest{
				EntityType: app.EntityType(entityType),
				EntityID:   args[0],
				SessionID:  sessionID,
				Message:    strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			for ev := range events {
				switch typed := ev.(type) {
				case runtime.ContentDeltaEvent:
					fmt.Fprint(out, typed.Delta)
				case runtime.ToolCallStartEvent:
					fmt.Fprintf(errOut, "\n[tool %s]\n", typed.ToolCall.Function.Name)
				case runtime.AgentStepEvent:
					fmt.Fprintf(errOut, "\n[%s %s]\n", typed.AgentName, typed.Step)
				case runtime.ErrorEvent:
					fmt.Fprintf(errOut, "\nerror: %s\n", typed.Message)
				}
			}
			fmt.Fprintln(out)
			fmt.Fprintf(errOut, "session: %s\n", sess.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "agentd.yaml", "path to the catalog file")
	cmd.Flags().StringVar(&dataDir, "data-dir", ".agentd", "directory for sqlite databases")
	cmd.Flags().StringVarP(&entityType, "type", "t", "agent", "entity type (agent or team)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to continue")

	return cmd
}
