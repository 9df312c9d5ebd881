package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/claustre/claustre/internal/feeder"
	"github.com/claustre/claustre/internal/output"
)

// NewFeedNextCmd implements `feed-next`, called by the feed-next.sh hook
// after a task finishes to pull the next pending task onto the same
// session (spec §4.5, §4.7). Exits 0 for "nothing to feed" and
// "rate-limited" as well as success.
func NewFeedNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed-next",
		Short: "Feed the next pending task to a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session-id")
			if sessionID == "" {
				return cmdErr(errors.New("--session-id is required"))
			}

			if err := withDB(func(db *DB) error {
				return feeder.FeedNextTask(cmd.Context(), db, sessionID)
			}); err != nil {
				return err
			}

			type resp struct {
				SessionID string `json:"session_id"`
			}
			return output.PrintSuccess(resp{SessionID: sessionID})
		},
	}

	cmd.Flags().String("session-id", "", "Session ID (required)")
	return cmd
}
