package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/claustre/claustre/internal/sessionhost"
)

// NewSessionHostCmd implements `session-host`, the hidden entry point
// sessionmgr.spawnSessionHost re-execs itself as (spec §4.3). It is never
// invoked directly by a human; it runs detached, owns a PTY, and exits when
// its child exits and no client reconnects within the grace window.
func NewSessionHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "session-host",
		Short:  "Run the detached per-session PTY host (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session-id")
			worktreePath, _ := cmd.Flags().GetString("worktree-path")
			if sessionID == "" {
				return errors.New("--session-id is required")
			}
			if worktreePath == "" {
				return errors.New("--worktree-path is required")
			}
			if len(args) == 0 {
				return errors.New("a command to run must follow --")
			}

			return sessionhost.Run(cmd.Context(), sessionhost.Options{
				SessionID:    sessionID,
				WorktreePath: worktreePath,
				Command:      args,
			})
		},
	}

	cmd.Flags().String("session-id", "", "Session ID (required)")
	cmd.Flags().String("worktree-path", "", "Worktree path (required)")
	return cmd
}
