package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	vmerrors "github.com/coral-mesh/vmprof/internal/errors"
	"github.com/coral-mesh/vmprof/internal/storage"
)

func newSessionsCmd(a *app) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored profile sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer closeStore()

			sessions, err := store.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No stored sessions.")
				return err
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("Session", "Script", "Saved", "Elapsed", "Functions", "Anomalies", "Detached")
			for _, s := range sessions {
				t.Row(
					s.ID,
					s.Script,
					s.SavedAt.Local().Format("2006-01-02 15:04:05"),
					s.Elapsed.String(),
					strconv.Itoa(s.Functions),
					strconv.FormatInt(s.Anomalies.Total(), 10),
					strconv.FormatBool(s.Detached),
				)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
	addDatabaseFlag(cmd.Flags(), &dbPath)

	cmd.AddCommand(newSessionsDeleteCmd(a))
	return cmd
}

func newSessionsDeleteCmd(a *app) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "delete <session-id>...",
		Short: "Delete stored profile sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer closeStore()

			for _, id := range args {
				if err := store.DeleteSession(cmd.Context(), id); err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", id); err != nil {
					return err
				}
			}
			return nil
		},
	}
	addDatabaseFlag(cmd.Flags(), &dbPath)
	return cmd
}

// openStore opens the session database named by flag or config.
func (a *app) openStore(ctx context.Context, flagPath string) (*storage.Store, func(), error) {
	path := flagPath
	if path == "" {
		path = a.cfg.Output.Database
	}
	if path == "" {
		return nil, nil, errors.New("no database configured (use --db or output.database)")
	}
	db, err := storage.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewStore(db, a.logger)
	if err != nil {
		vmerrors.DeferClose(a.logger, db, "failed to close database")
		return nil, nil, err
	}
	return store, func() { vmerrors.DeferClose(a.logger, db, "failed to close database") }, nil
}
