// Package cli implements the cobra command tree for log-visibility.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/harryosmar/log-visibility/pkg/config"
	"github.com/harryosmar/log-visibility/pkg/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// globals is shared by every subcommand once the root has loaded it
type globals struct {
	config *config.AppConfig
	logger *zap.Logger
}

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	cmd := NewRootCommand()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)

		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "log-visibility",
		Short: "Channel visibility filter for container logs",
		Long: `log-visibility tags container log lines with channels (container,
service, stream and level) and decides which ones are emitted using a
show-all or hide-all policy with per-channel exceptions.

The policy can be changed at runtime through the HTTP control API, a redis
control channel or by editing the config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			// Flags win over file and environment
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.LogLevel, _ = flags.GetString("log-level")
			}
			if flags.Changed("log-format") {
				cfg.LogFormat, _ = flags.GetString("log-format")
			}
			if err := cfg.Validate(); err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			g.config = cfg
			g.logger = logger

			logger.Debug("Configuration loaded",
				zap.String("config", cfgFile),
				zap.String("logLevel", cfg.LogLevel),
				zap.String("logFormat", cfg.LogFormat),
			)
			return nil
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (JSON or YAML)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "json", "log format: json, console")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	cmd.AddCommand(
		newServeCommand(g),
		newCheckCommand(g),
	)

	return cmd
}
