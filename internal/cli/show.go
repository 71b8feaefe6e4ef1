package cli

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/vmprof/internal/report"
	"github.com/coral-mesh/vmprof/pkg/version"
)

func newShowCmd(a *app) *cobra.Command {
	var (
		dbPath string
		out    outputFlags
	)

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Render a stored profile session",
		Example: `  vmprof show 3f0c2d1e-... --db profiles.db
  vmprof show 3f0c2d1e-... --db profiles.db --format pprof -o race.pb.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := out.Resolve(a.cfg)
			if err != nil {
				return err
			}
			store, closeStore, err := a.openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer closeStore()

			sess, snap, err := store.LoadSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			dest := out.Output
			if dest == "" {
				dest = "-"
			}
			return writeReport(cmd.OutOrStdout(), dest, format, report.Report{
				Script:    sess.Script,
				Generated: sess.SavedAt,
				Generator: version.String(),
				Snapshot:  snap,
			})
		},
	}
	addDatabaseFlag(cmd.Flags(), &dbPath)
	out.AddFlags(cmd)
	return cmd
}
