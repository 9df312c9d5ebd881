package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/claustre/claustre/internal/models"
)

var taskColumns = `id, project_id, title, description, mode, status, session_id,
	sort_order, needs_new_session, pr_url, input_tokens, output_tokens, cost_usd,
	created_at, updated_at, started_at, completed_at`

func scanTaskRow(row interface{ Scan(...any) error }) (*models.Task, error) {
	var t models.Task
	var sessionID, prURL sql.NullString
	var startedAt, completedAt sql.NullTime

	if err := row.Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Mode, &t.Status, &sessionID,
		&t.SortOrder, &t.NeedsNewSession, &prURL, &t.InputTokens, &t.OutputTokens, &t.CostUSD,
		&t.CreatedAt, &t.UpdatedAt, &startedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	if sessionID.Valid {
		t.SessionID = &sessionID.String
	}
	if prURL.Valid {
		t.PRURL = &prURL.String
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

// CreateTask inserts a task with sort_order computed atomically as
// MAX(sort_order)+1 for the project (spec §4.1).
func CreateTask(db *sql.DB, projectID, title, description string, mode models.TaskMode) (*models.Task, error) {
	var task *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		t, err := CreateTaskTx(tx, projectID, title, description, mode)
		if err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CreateTaskTx inserts and returns a task inside an existing transaction.
func CreateTaskTx(tx *sql.Tx, projectID, title, description string, mode models.TaskMode) (*models.Task, error) {
	id := newID()

	if _, err := tx.Exec(`
		INSERT INTO tasks (id, project_id, title, description, mode, status, sort_order, needs_new_session)
		SELECT ?, ?, ?, ?, ?, 'pending', COALESCE(MAX(sort_order), 0) + 1, 1
		FROM tasks WHERE project_id = ?
	`, id, projectID, title, description, mode, projectID); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return getTaskTx(tx, id)
}

func getTaskTx(tx *sql.Tx, id string) (*models.Task, error) {
	row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "task", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch task: %w", err)
	}
	return t, nil
}

// GetTask retrieves a task by ID.
func GetTask(db *sql.DB, id string) (*models.Task, error) {
	row := db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "task", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return t, nil
}

// ListTasks retrieves all tasks for a project ordered by sort_order.
func ListTasks(db *sql.DB, projectID string) ([]*models.Task, error) {
	rows, err := db.Query(`SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY sort_order ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*models.Task, 0)
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// legalTaskTransitions enumerates the task status state machine (spec §4.1).
// in_progress -> pending is not in §4.1's literal table but is required by
// §4.5's launch-failure revert contract: RevertPrepared must be able to put
// a task PrepareNextTask just started back to pending.
var legalTaskTransitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskStatusPending:    {models.TaskStatusInProgress, models.TaskStatusError},
	models.TaskStatusInProgress: {models.TaskStatusInReview, models.TaskStatusDone, models.TaskStatusError, models.TaskStatusPending},
	models.TaskStatusInReview:   {models.TaskStatusDone, models.TaskStatusInProgress, models.TaskStatusError},
	models.TaskStatusDone:       {},
	models.TaskStatusError:      {models.TaskStatusPending, models.TaskStatusInProgress},
}

func isLegalTaskTransition(from, to models.TaskStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range legalTaskTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UpdateTaskStatus transitions a task's status, folding started_at/completed_at
// into the same UPDATE per spec §4.1: entering in_progress sets
// started_at = COALESCE(started_at, now); entering done sets completed_at = now;
// every update sets updated_at = now.
func UpdateTaskStatus(db *sql.DB, taskID string, to models.TaskStatus) (*models.Task, error) {
	var task *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		current, err := getTaskTx(tx, taskID)
		if err != nil {
			return err
		}
		if !isLegalTaskTransition(current.Status, to) {
			return &IllegalTransitionError{
				Entity: "task", ID: taskID,
				From: string(current.Status), To: string(to),
			}
		}

		switch to {
		case models.TaskStatusInProgress:
			if _, err := tx.Exec(`
				UPDATE tasks SET status = ?, started_at = COALESCE(started_at, CURRENT_TIMESTAMP),
					updated_at = CURRENT_TIMESTAMP WHERE id = ?
			`, to, taskID); err != nil {
				return fmt.Errorf("update task status: %w", err)
			}
		case models.TaskStatusDone:
			if _, err := tx.Exec(`
				UPDATE tasks SET status = ?, completed_at = CURRENT_TIMESTAMP,
					updated_at = CURRENT_TIMESTAMP WHERE id = ?
			`, to, taskID); err != nil {
				return fmt.Errorf("update task status: %w", err)
			}
		default:
			if _, err := tx.Exec(`
				UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
			`, to, taskID); err != nil {
				return fmt.Errorf("update task status: %w", err)
			}
		}

		task, err = getTaskTx(tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// AssignTaskSession sets or clears a task's session_id and needs_new_session flag.
func AssignTaskSession(db *sql.DB, taskID string, sessionID *string, needsNewSession bool) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE tasks SET session_id = ?, needs_new_session = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, sessionID, needsNewSession, taskID)
		if err != nil {
			return fmt.Errorf("assign task session: %w", err)
		}
		return nil
	})
}

// SetTaskPRURL records the pull request URL produced for a task.
func SetTaskPRURL(db *sql.DB, taskID, prURL string) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE tasks SET pr_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, prURL, taskID)
		if err != nil {
			return fmt.Errorf("set task pr_url: %w", err)
		}
		return nil
	})
}

// AccrueTaskUsage adds token and cost deltas to a task's running counters.
func AccrueTaskUsage(db *sql.DB, taskID string, inputTokens, outputTokens int64, costUSD float64) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE tasks SET input_tokens = input_tokens + ?, output_tokens = output_tokens + ?,
				cost_usd = cost_usd + ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, inputTokens, outputTokens, costUSD, taskID)
		if err != nil {
			return fmt.Errorf("accrue task usage: %w", err)
		}
		return nil
	})
}

// SwapTaskOrder reads both tasks' sort_order and writes them swapped, in one
// transaction (spec §4.1 op 2).
func SwapTaskOrder(db *sql.DB, taskA, taskB string) error {
	return Transact(db, func(tx *sql.Tx) error {
		var orderA, orderB int
		if err := tx.QueryRow(`SELECT sort_order FROM tasks WHERE id = ?`, taskA).Scan(&orderA); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &NotFoundError{Entity: "task", ID: taskA}
			}
			return fmt.Errorf("read sort_order for %s: %w", taskA, err)
		}
		if err := tx.QueryRow(`SELECT sort_order FROM tasks WHERE id = ?`, taskB).Scan(&orderB); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &NotFoundError{Entity: "task", ID: taskB}
			}
			return fmt.Errorf("read sort_order for %s: %w", taskB, err)
		}

		if _, err := tx.Exec(`UPDATE tasks SET sort_order = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, orderB, taskA); err != nil {
			return fmt.Errorf("swap sort_order for %s: %w", taskA, err)
		}
		if _, err := tx.Exec(`UPDATE tasks SET sort_order = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, orderA, taskB); err != nil {
			return fmt.Errorf("swap sort_order for %s: %w", taskB, err)
		}
		return nil
	})
}

// NextPendingTaskForSession returns the lowest sort_order pending task
// assigned to the session, or nil if none.
func NextPendingTaskForSession(db *sql.DB, sessionID string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT `+taskColumns+` FROM tasks
		WHERE session_id = ? AND status = 'pending'
		ORDER BY sort_order ASC LIMIT 1
	`, sessionID)
	t, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query next pending task: %w", err)
	}
	return t, nil
}

// InProgressTaskForSession returns the session's current in_progress task,
// or nil if it has none (spec §4.6 "task_done rule" step 1).
func InProgressTaskForSession(db *sql.DB, sessionID string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT `+taskColumns+` FROM tasks
		WHERE session_id = ? AND status = 'in_progress'
		ORDER BY sort_order ASC LIMIT 1
	`, sessionID)
	t, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query in-progress task: %w", err)
	}
	return t, nil
}

// HasInProgressTaskForSession reports whether the session currently has a
// task in the in_progress state (used to decide whether a newly assigned
// task on an idle session can launch immediately, spec §4.4 "Default
// session").
func HasInProgressTaskForSession(db *sql.DB, sessionID string) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM tasks WHERE session_id = ? AND status = 'in_progress'
	`, sessionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count in-progress tasks: %w", err)
	}
	return count > 0, nil
}

// DeleteTask removes a task and its subtasks. Dependent subtasks are removed
// via ON DELETE CASCADE; the task's session is untouched (spec §4.1).
func DeleteTask(db *sql.DB, id string) error {
	return Transact(db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		ra, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if ra == 0 {
			return &NotFoundError{Entity: "task", ID: id}
		}
		return nil
	})
}

// marshalProgress is a small helper used by session progress persistence
// (only sessions carry a claude_progress column).
func marshalProgress(steps []models.ProgressStep) (string, error) {
	if steps == nil {
		steps = []models.ProgressStep{}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("marshal progress: %w", err)
	}
	return string(b), nil
}

func unmarshalProgress(raw string) ([]models.ProgressStep, error) {
	var steps []models.ProgressStep
	if raw == "" {
		return steps, nil
	}
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	return steps, nil
}
