package rpc

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/claustre/claustre/internal/app"
	"github.com/claustre/claustre/internal/feeder"
	"github.com/claustre/claustre/internal/models"
	"github.com/claustre/claustre/internal/store"
)

// autoFeed implements spec §4.6's critical-section discipline: acquire the
// store mutex for the smallest possible DB-only section, drop it before any
// external I/O, and reacquire only to revert on failure.
func (s *Server) autoFeed(sessionID string) error {
	s.mu.Lock()
	prepared, err := feeder.PrepareNextTask(s.db, sessionID)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("prepare next task: %w", err)
	}
	if prepared == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := feeder.LaunchPrepared(ctx, prepared); err != nil {
		s.mu.Lock()
		revertErr := feeder.RevertPrepared(s.db, prepared, err)
		s.mu.Unlock()
		if revertErr != nil {
			return fmt.Errorf("launch failed (%v) and revert failed: %w", err, revertErr)
		}
		return fmt.Errorf("launch prepared task: %w", err)
	}
	return nil
}

type statusParams struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Message   string `json:"message"`
}

// handleStatus implements claustre_status (spec §4.6 table).
func handleStatus(s *Server, raw json.RawMessage) error {
	var p statusParams
	if err := unmarshalParams(raw, &p); err != nil {
		return err
	}

	state := models.ParseClaudeStatus(p.State)

	s.mu.Lock()
	err := store.UpdateSessionActivity(s.db, p.SessionID, state, p.Message)
	if err == nil && state == models.ClaudeStatusDone {
		err = transitionInProgressTaskOnDone(s.db, p.SessionID)
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}

	if state == models.ClaudeStatusDone {
		return s.autoFeed(p.SessionID)
	}
	return nil
}

// transitionInProgressTaskOnDone moves a session's in-progress task to done
// (autonomous) or in_review (supervised, awaiting human confirmation) when
// the agent reports itself done via claustre_status rather than
// claustre_task_done.
func transitionInProgressTaskOnDone(db *sql.DB, sessionID string) error {
	task, err := store.InProgressTaskForSession(db, sessionID)
	if err != nil {
		return fmt.Errorf("find in-progress task: %w", err)
	}
	if task == nil {
		return nil
	}
	target := models.TaskStatusDone
	if task.Mode == models.TaskModeSupervised {
		target = models.TaskStatusInReview
	}
	_, err = store.UpdateTaskStatus(db, task.ID, target)
	return err
}

type taskDoneParams struct {
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
	PRURL     string `json:"pr_url,omitempty"`
}

// handleTaskDone implements the "task_done rule" of spec §4.6.
func handleTaskDone(s *Server, raw json.RawMessage) error {
	var p taskDoneParams
	if err := unmarshalParams(raw, &p); err != nil {
		return err
	}

	s.mu.Lock()
	err := applyTaskDone(s.db, p)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.autoFeed(p.SessionID)
}

func applyTaskDone(db *sql.DB, p taskDoneParams) error {
	task, err := store.InProgressTaskForSession(db, p.SessionID)
	if err != nil {
		return fmt.Errorf("find in-progress task: %w", err)
	}
	if task == nil {
		return fmt.Errorf("no in-progress task for session %s", p.SessionID)
	}

	subtasks, err := store.ListSubtasks(db, task.ID)
	if err != nil {
		return fmt.Errorf("list subtasks: %w", err)
	}

	if len(subtasks) > 0 {
		if err := advanceSubtasks(db, task, subtasks); err != nil {
			return err
		}
	} else {
		if _, err := store.UpdateTaskStatus(db, task.ID, models.TaskStatusInReview); err != nil {
			return fmt.Errorf("move task to in_review: %w", err)
		}
		if p.PRURL != "" {
			if err := store.SetTaskPRURL(db, task.ID, p.PRURL); err != nil {
				return fmt.Errorf("set pr url: %w", err)
			}
		}
	}

	if err := store.UpdateSessionActivity(db, p.SessionID, models.ClaudeStatusDone, p.Summary); err != nil {
		return fmt.Errorf("mark session done: %w", err)
	}
	return nil
}

// advanceSubtasks implements task_done rule step 2: complete the running
// subtask, then either start the next pending one or move the task to
// in_review.
func advanceSubtasks(db *sql.DB, task *models.Task, subtasks []*models.Subtask) error {
	for _, sub := range subtasks {
		if sub.Status == models.SubtaskStatusInProgress {
			if _, err := store.UpdateSubtaskStatus(db, sub.ID, models.SubtaskStatusDone); err != nil {
				return fmt.Errorf("complete subtask: %w", err)
			}
			break
		}
	}

	next, err := store.NextPendingSubtask(db, task.ID)
	if err != nil {
		return fmt.Errorf("find next subtask: %w", err)
	}
	if next != nil {
		if _, err := store.UpdateSubtaskStatus(db, next.ID, models.SubtaskStatusInProgress); err != nil {
			return fmt.Errorf("start next subtask: %w", err)
		}
		return nil
	}

	if _, err := store.UpdateTaskStatus(db, task.ID, models.TaskStatusInReview); err != nil {
		return fmt.Errorf("move task to in_review: %w", err)
	}
	return nil
}

type rateLimitedParams struct {
	SessionID  string  `json:"session_id"`
	LimitType  string  `json:"limit_type"`
	ResetAt    string  `json:"reset_at,omitempty"`
	Usage5hPct float64 `json:"usage_5h_pct,omitempty"`
	Usage7dPct float64 `json:"usage_7d_pct,omitempty"`
}

func handleRateLimited(s *Server, raw json.RawMessage) error {
	var p rateLimitedParams
	if err := unmarshalParams(raw, &p); err != nil {
		return err
	}

	grace := time.Duration(app.RateLimitGraceMinutes()) * time.Minute
	resetAt := sql.NullTime{Time: time.Now().Add(grace), Valid: true}
	if p.ResetAt != "" {
		if parsed, err := time.Parse(time.RFC3339, p.ResetAt); err == nil {
			resetAt = sql.NullTime{Time: parsed, Valid: true}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return store.SetRateLimited(s.db, models.LimitType(p.LimitType), resetAt)
}

type usageWindowsParams struct {
	SessionID  string  `json:"session_id"`
	Usage5hPct float64 `json:"usage_5h_pct"`
	Usage7dPct float64 `json:"usage_7d_pct"`
}

func handleUsageWindows(s *Server, raw json.RawMessage) error {
	var p usageWindowsParams
	if err := unmarshalParams(raw, &p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.UpdateUsageWindows(s.db, p.Usage5hPct, p.Usage7dPct)
}

type logParams struct {
	SessionID string `json:"session_id"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// handleLog appends a structured log line to an opaque best-effort sink
// (spec §4.6: "opaque sink, best-effort"). No store mutation is needed, so
// no mutex is taken.
func handleLog(_ *Server, raw json.RawMessage) error {
	var p logParams
	if err := unmarshalParams(raw, &p); err != nil {
		return err
	}
	return appendSessionLog(p.SessionID, p.Level, p.Message)
}
