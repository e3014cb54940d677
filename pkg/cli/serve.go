package cli

import (
	"github.com/harryosmar/log-visibility/pkg/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the visibility service",
		Long: `Run the visibility service: tail container logs when docker is enabled,
serve /metrics, /healthz and the /api control endpoints, follow the redis
control channel when enabled and reload the policy when the config file
changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g.logger.Info("Starting log-visibility", zap.Stringer("config", g.config))

			a, err := app.NewApp(g.config, g.logger, nil)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			return a.Start(cmd.Context())
		},
	}
}
