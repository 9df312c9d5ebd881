package commands

import (
	"github.com/spf13/cobra"

	"github.com/claustre/claustre/internal/output"
	"github.com/claustre/claustre/internal/reconciler"
)

// NewDashboardBootCmd runs the startup reconciliation steps of spec §4.8
// (schema migration happens implicitly when the DB is opened). There is no
// TUI in this build, so this is exposed as a plain administrative command
// rather than folded into an interactive dashboard boot path.
func NewDashboardBootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard-boot",
		Short: "Run startup reconciliation (session cleanup, stale sockets, reconnect)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result reconciler.Result
			if err := withDB(func(db *DB) error {
				r, err := reconciler.Reconcile(db)
				result = r
				return err
			}); err != nil {
				return err
			}

			return output.PrintSuccess(result)
		},
	}

	return cmd
}
