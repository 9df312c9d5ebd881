package commands

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/claustre/claustre/internal/app"
	"github.com/claustre/claustre/internal/models"
	"github.com/claustre/claustre/internal/output"
	"github.com/claustre/claustre/internal/store"
)

// NewSessionUpdateCmd implements `session-update`, the non-interactive
// hook entry point a worktree's .claude/hooks scripts invoke on agent
// lifecycle events (spec §4.7).
func NewSessionUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session-update",
		Short: "Update a session's activity state from a hook",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session-id")
			prURL, _ := cmd.Flags().GetString("pr-url")
			inputTokens, _ := cmd.Flags().GetInt64("input-tokens")
			outputTokens, _ := cmd.Flags().GetInt64("output-tokens")
			cost, _ := cmd.Flags().GetFloat64("cost")
			resumed, _ := cmd.Flags().GetBool("resumed")

			if sessionID == "" {
				return cmdErr(errors.New("--session-id is required"))
			}

			if err := withDB(func(db *DB) error {
				return applySessionUpdate(db, sessionID, prURL, inputTokens, outputTokens, cost, resumed)
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
	cmd.Flags().String("pr-url", "", "Pull request URL for the session's in-progress task")
	cmd.Flags().Int64("input-tokens", 0, "Input tokens to accrue on the in-progress task")
	cmd.Flags().Int64("output-tokens", 0, "Output tokens to accrue on the in-progress task")
	cmd.Flags().Float64("cost", 0, "Cost in USD to accrue on the in-progress task")
	cmd.Flags().Bool("resumed", false, "Agent resumed work on an in_review task")
	return cmd
}

func applySessionUpdate(db *DB, sessionID, prURL string, inputTokens, outputTokens int64, cost float64, resumed bool) error {
	if err := readProgressFile(db, sessionID); err != nil {
		slog.Warn("session-update: progress file read failed", "session_id", sessionID, "error", err.Error())
	}

	task, err := store.InProgressTaskForSession(db, sessionID)
	if err != nil {
		return err
	}

	if inputTokens != 0 || outputTokens != 0 || cost != 0 {
		if task != nil {
			if err := store.AccrueTaskUsage(db, task.ID, inputTokens, outputTokens, cost); err != nil {
				return err
			}
		}
	}

	switch {
	case prURL != "":
		return applyPRURL(db, sessionID, task, prURL)
	case resumed:
		return applyResumed(db, sessionID, task)
	default:
		return store.UpdateSessionActivity(db, sessionID, models.ClaudeStatusIdle, "")
	}
}

// applyPRURL implements the "--pr-url" branch: move the in-progress task to
// in_review, store the URL, mark the session done, and fire a one-time
// notification (spec §4.7, §5 "re-entering in_review does not re-notify").
func applyPRURL(db *DB, sessionID string, task *models.Task, prURL string) error {
	if task != nil && task.Status != models.TaskStatusInReview {
		if _, err := store.UpdateTaskStatus(db, task.ID, models.TaskStatusInReview); err != nil {
			return err
		}
		if err := store.SetTaskPRURL(db, task.ID, prURL); err != nil {
			return err
		}
		slog.Info("task ready for review", "session_id", sessionID, "task_id", task.ID, "pr_url", prURL)
	}
	return store.UpdateSessionActivity(db, sessionID, models.ClaudeStatusDone, prURL)
}

// applyResumed implements the "--resumed" branch: an in_review task that the
// agent picked back up transitions back to in_progress and the session to
// working (spec §4.7).
func applyResumed(db *DB, sessionID string, task *models.Task) error {
	if task == nil {
		session, err := store.GetSession(db, sessionID)
		if err != nil {
			return err
		}
		tasks, err := store.ListTasks(db, session.ProjectID)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.Status == models.TaskStatusInReview && t.SessionID != nil && *t.SessionID == sessionID {
				task = t
				break
			}
		}
	}
	if task != nil && task.Status == models.TaskStatusInReview {
		if _, err := store.UpdateTaskStatus(db, task.ID, models.TaskStatusInProgress); err != nil {
			return err
		}
	}
	return store.UpdateSessionActivity(db, sessionID, models.ClaudeStatusWorking, "resumed")
}

// readProgressFile loads $BASE/tmp/<id>/progress.json if present and
// persists it as the session's claude_progress (spec §4.7). Best-effort,
// like every hook-initiated state write (spec §7): a missing or malformed
// file is logged by the caller and never blocks the rest of the update.
func readProgressFile(db *DB, sessionID string) error {
	path, err := app.ProgressPath(sessionID)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var steps []models.ProgressStep
	if err := json.Unmarshal(b, &steps); err != nil {
		return err
	}
	return store.UpdateSessionProgress(db, sessionID, steps)
}
