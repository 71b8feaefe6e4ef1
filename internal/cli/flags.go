package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coral-mesh/vmprof/internal/config"
	"github.com/coral-mesh/vmprof/internal/profiler"
	"github.com/coral-mesh/vmprof/internal/report"
)

// outputFlags selects the report format and destination.
type outputFlags struct {
	Format string
	Output string
}

// AddFlags registers --format/-f and --output/-o.
func (f *outputFlags) AddFlags(cmd *cobra.Command) {
	names := make([]string, 0, len(report.Formats()))
	for _, format := range report.Formats() {
		names = append(names, string(format))
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.Format, "format", "f", "", fmt.Sprintf("Report format (%s); default from config", strings.Join(names, ", ")))
	flags.StringVarP(&f.Output, "output", "o", "", `Output file, "-" for stdout`)

	_ = cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return names, cobra.ShellCompDirectiveNoFileComp
	})
}

// Resolve returns the chosen format, falling back to the configured one.
func (f *outputFlags) Resolve(cfg *config.Config) (report.Format, error) {
	name := f.Format
	if name == "" {
		name = cfg.Output.Format
	}
	return report.ParseFormat(name)
}

// profileFlags override the profiler settings from the config file.
type profileFlags struct {
	Symbols     string
	Script      string
	Database    string
	NoCallGraph bool
	StackGrowth string
	Record      string
	Strict      bool
}

// AddFlags registers the profiling flags on flags.
func (f *profileFlags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.Symbols, "symbols", "", "Symbol table file (default <trace>.symbols.yaml or config symbols)")
	flags.StringVar(&f.Script, "script", "", "Script name for the report (single trace only; default trace file name)")
	flags.StringVar(&f.Database, "db", "", "DuckDB file to store snapshots in (default config output.database)")
	flags.BoolVar(&f.NoCallGraph, "no-call-graph", false, "Do not record caller/callee edges")
	flags.StringVar(&f.StackGrowth, "stack-growth", "", "VM stack growth direction (down, up)")
	flags.StringVar(&f.Record, "record", "", "Write the accepted events to a normalized trace (single trace only)")
	flags.BoolVar(&f.Strict, "strict", false, "Fail on malformed trace lines instead of skipping them")
}

// apply copies set flags onto cfg.
func (f *profileFlags) apply(cfg *config.Config) error {
	if f.NoCallGraph {
		cfg.CallGraph = false
	}
	if f.StackGrowth != "" {
		if _, err := profiler.ParseStackGrowth(f.StackGrowth); err != nil {
			return err
		}
		cfg.StackGrowth = f.StackGrowth
	}
	if f.Database != "" {
		cfg.Output.Database = f.Database
	}
	if f.Symbols != "" {
		cfg.Symbols = f.Symbols
	}
	return nil
}

// addDatabaseFlag registers --db for commands reading stored sessions.
func addDatabaseFlag(flags *pflag.FlagSet, target *string) {
	flags.StringVar(target, "db", "", "DuckDB file with stored sessions (default config output.database)")
}
