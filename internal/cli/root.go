// Package cli implements the vmprof command line.
package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/vmprof/internal/config"
	"github.com/coral-mesh/vmprof/internal/logging"
)

// app carries state shared by subcommands once the root command has run.
type app struct {
	configPath string
	logLevel   string

	loader *config.Loader
	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "vmprof",
		Short: "Function-level profiler for bytecode virtual machines",
		Long: `vmprof attributes wall-clock time to the functions of a script running in a
bytecode VM. Execution events (function entry, instruction steps, native and
public calls) are recorded as a trace and replayed through the profiler, which
produces per-function self and total times and a call graph.

Reports can be rendered as text, XML, HTML, pprof or Graphviz, and snapshots
can be stored in a DuckDB database for later inspection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default $VMPROF_CONFIG or ~/.vmprof/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		newReplayCmd(a),
		newSessionsCmd(a),
		newShowCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if a.configPath != "" {
		loader = config.NewLoaderAt(a.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.loader = loader
	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	a.logger.Debug().Str("config", loader.Path()).Msg("Configuration loaded")
	return nil
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
