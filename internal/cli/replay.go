package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/coral-mesh/vmprof/internal/clock"
	"github.com/coral-mesh/vmprof/internal/config"
	"github.com/coral-mesh/vmprof/internal/constants"
	vmerrors "github.com/coral-mesh/vmprof/internal/errors"
	"github.com/coral-mesh/vmprof/internal/profiler"
	"github.com/coral-mesh/vmprof/internal/report"
	"github.com/coral-mesh/vmprof/internal/safe"
	"github.com/coral-mesh/vmprof/internal/storage"
	"github.com/coral-mesh/vmprof/internal/symbols"
	"github.com/coral-mesh/vmprof/internal/trace"
	"github.com/coral-mesh/vmprof/pkg/version"
)

// replayJob is one trace replayed through its own profiler.
type replayJob struct {
	trace    string
	script   string
	handle   profiler.Handle
	resolver *symbols.Table

	result   trace.Result
	snapshot profiler.Snapshot
}

func newReplayCmd(a *app) *cobra.Command {
	var (
		out outputFlags
		pf  profileFlags
	)

	cmd := &cobra.Command{
		Use:   "replay <trace>...",
		Short: "Replay recorded VM event traces and write profile reports",
		Long: `Replay one or more event traces through the profiler and write a report per
script. Traces are JSON lines:

  {"ts":1000,"event":"enter","address":496,"fp":16360}

with event one of enter, step, native_enter, native_leave, export_enter and
export_leave, ts in nanoseconds and fp the VM frame pointer. Lines starting
with # are ignored. Use "-" to read a single trace from stdin.

Reports are written to <output.dir>/<script>.prof.<ext> unless --output is
given. Several traces are replayed concurrently.

Examples:
  # Text report on stdout
  vmprof replay race.trace -o -

  # HTML report with names from a symbol table, stored in DuckDB
  vmprof replay race.trace --symbols race.symbols.yaml --format html --db profiles.db`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReplay(cmd, args, &out, &pf)
		},
	}
	out.AddFlags(cmd)
	pf.AddFlags(cmd.Flags())
	return cmd
}

func (a *app) runReplay(cmd *cobra.Command, traces []string, out *outputFlags, pf *profileFlags) error {
	cfg := a.cfg
	if err := pf.apply(cfg); err != nil {
		return err
	}
	format, err := out.Resolve(cfg)
	if err != nil {
		return err
	}
	if len(traces) > 1 {
		if pf.Script != "" || pf.Record != "" || (out.Output != "" && out.Output != "-") {
			return errors.New("--script, --record and --output apply to a single trace")
		}
		for _, t := range traces {
			if t == "-" {
				return errors.New("stdin can only be replayed on its own")
			}
		}
	}

	var jobs []*replayJob
	for i, path := range traces {
		script := pf.Script
		if script == "" {
			script = scriptName(path)
		}
		if !cfg.WantsProfile(script) {
			a.logger.Info().Str("script", script).Msg("Script not selected for profiling, skipping")
			continue
		}
		table, err := loadSymbols(cfg, path)
		if err != nil {
			return err
		}
		jobs = append(jobs, &replayJob{
			trace:    path,
			script:   script,
			handle:   profiler.Handle(i + 1),
			resolver: table,
		})
	}
	if len(jobs) == 0 {
		return errors.New("no trace selected for profiling (check scripts in the config)")
	}

	registry := profiler.NewRegistry(a.logger)
	g, ctx := errgroup.WithContext(cmd.Context())
	for _, job := range jobs {
		g.Go(func() error {
			return a.replayTrace(ctx, cmd.InOrStdin(), registry, pf, job)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var store *storage.Store
	if cfg.Output.Database != "" {
		db, err := storage.Open(cmd.Context(), cfg.Output.Database)
		if err != nil {
			return err
		}
		defer vmerrors.DeferClose(a.logger, db, "failed to close database")
		if store, err = storage.NewStore(db, a.logger); err != nil {
			return err
		}
	}

	generated := time.Now()
	for _, job := range jobs {
		r := report.Report{
			Script:    job.script,
			Generated: generated,
			Generator: version.String(),
			Snapshot:  job.snapshot,
		}
		dest := out.Output
		if dest == "" {
			dest = defaultReportPath(cfg, job.script, format)
		}
		if err := writeReport(cmd.OutOrStdout(), dest, format, r); err != nil {
			return err
		}
		if store != nil {
			if _, err := store.SaveSnapshot(cmd.Context(), job.script, job.snapshot); err != nil {
				return err
			}
		}

		snap := job.snapshot
		ev := a.logger.Info().
			Str("script", job.script).
			Str("session_id", snap.SessionID).
			Int("events", job.result.Events).
			Int("functions", snap.Statistics.Len()).
			Dur("elapsed", snap.Elapsed)
		if dest != "-" {
			ev = ev.Str("report", dest)
		}
		if n := snap.Anomalies.Total(); n > 0 {
			ev = ev.Int64("anomalies", n)
		}
		ev.Msg("Profile written")
	}
	return nil
}

// replayTrace attaches a profiler for job, replays its trace and detaches.
func (a *app) replayTrace(ctx context.Context, stdin io.Reader, registry *profiler.Registry, pf *profileFlags, job *replayJob) (err error) {
	logger := a.logger.With().Str("script", job.script).Logger()
	c := clock.NewManual(0)
	opts := profiler.Options{
		Clock:            c,
		Logger:           logger,
		StackGrowth:      a.cfg.Growth(),
		DisableCallGraph: !a.cfg.CallGraph,
	}
	if job.resolver != nil {
		opts.Resolver = job.resolver
	}
	p, err := registry.Attach(job.handle, opts)
	if err != nil {
		return err
	}

	var sink profiler.EventSink = p
	if pf.Record != "" {
		f, createErr := os.Create(pf.Record)
		if createErr != nil {
			return fmt.Errorf("failed to create %s: %w", pf.Record, createErr)
		}
		defer vmerrors.CloseWith(&err, f, "failed to close recorded trace")
		rec := trace.NewRecorder(f, c, p, logger)
		defer vmerrors.FlushWith(&err, rec, "failed to flush recorded trace")
		sink = rec
	}

	var in io.Reader = stdin
	if job.trace != "-" {
		f, openErr := safe.Open(job.trace, &safe.Options{MaxSize: -1})
		if openErr != nil {
			return fmt.Errorf("failed to open trace: %w", openErr)
		}
		defer vmerrors.DeferClose(logger, f, "failed to close trace")
		in = f
	}

	rp := trace.NewReplayer(c, logger)
	rp.Strict = pf.Strict
	job.result, err = rp.Replay(ctx, in, sink)
	if err != nil {
		registry.Detach(job.handle)
		return fmt.Errorf("%s: %w", job.trace, err)
	}
	if job.result.Skipped > 0 {
		logger.Warn().Int("skipped", job.result.Skipped).Msg("Malformed trace lines were skipped")
	}

	job.snapshot, _ = registry.Detach(job.handle)
	return nil
}

// scriptName derives a script name from a trace path: race.trace -> race.
func scriptName(path string) string {
	if path == "-" {
		return "stdin"
	}
	base := filepath.Base(config.PortablePath(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// loadSymbols loads the configured symbol table, or <trace>.symbols.yaml
// next to the trace when none is configured. A missing sibling file means
// unresolved names.
func loadSymbols(cfg *config.Config, tracePath string) (*symbols.Table, error) {
	if cfg.Symbols != "" {
		return symbols.LoadFile(cfg.Symbols)
	}
	if tracePath == "-" {
		return nil, nil
	}
	sibling := strings.TrimSuffix(tracePath, filepath.Ext(tracePath)) + constants.SymbolsSuffix
	if _, err := os.Stat(sibling); err != nil {
		return nil, nil
	}
	return symbols.LoadFile(sibling)
}

func defaultReportPath(cfg *config.Config, script string, format report.Format) string {
	name := filepath.Base(script) + constants.ReportSuffix + "." + format.Extension()
	return filepath.Join(cfg.Output.Dir, name)
}

// writeReport renders r to dest, or to stdout when dest is "-".
func writeReport(stdout io.Writer, dest string, format report.Format, r report.Report) (err error) {
	w, err := report.NewWriter(format)
	if err != nil {
		return err
	}
	if dest == "-" {
		return w.Write(stdout, r)
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer vmerrors.CloseWith(&err, f, "failed to close report")
	if err := w.Write(f, r); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}
