package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/claustre/claustre/internal/models"
)

var subtaskColumns = `id, task_id, title, description, status, sort_order, created_at, updated_at`

func scanSubtaskRow(row interface{ Scan(...any) error }) (*models.Subtask, error) {
	var s models.Subtask
	if err := row.Scan(&s.ID, &s.TaskID, &s.Title, &s.Description, &s.Status, &s.SortOrder, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSubtask inserts a subtask with sort_order computed atomically as
// MAX(sort_order)+1 per parent task (spec §4.1).
func CreateSubtask(db *sql.DB, taskID, title, description string) (*models.Subtask, error) {
	var subtask *models.Subtask
	err := Transact(db, func(tx *sql.Tx) error {
		s, err := CreateSubtaskTx(tx, taskID, title, description)
		if err != nil {
			return err
		}
		subtask = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return subtask, nil
}

// CreateSubtaskTx inserts and returns a subtask inside an existing transaction.
func CreateSubtaskTx(tx *sql.Tx, taskID, title, description string) (*models.Subtask, error) {
	id := newID()

	if _, err := tx.Exec(`
		INSERT INTO subtasks (id, task_id, title, description, status, sort_order)
		SELECT ?, ?, ?, ?, 'pending', COALESCE(MAX(sort_order), 0) + 1
		FROM subtasks WHERE task_id = ?
	`, id, taskID, title, description, taskID); err != nil {
		return nil, fmt.Errorf("insert subtask: %w", err)
	}

	return getSubtaskTx(tx, id)
}

func getSubtaskTx(tx *sql.Tx, id string) (*models.Subtask, error) {
	row := tx.QueryRow(`SELECT `+subtaskColumns+` FROM subtasks WHERE id = ?`, id)
	s, err := scanSubtaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "subtask", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch subtask: %w", err)
	}
	return s, nil
}

// GetSubtask retrieves a subtask by ID.
func GetSubtask(db *sql.DB, id string) (*models.Subtask, error) {
	row := db.QueryRow(`SELECT `+subtaskColumns+` FROM subtasks WHERE id = ?`, id)
	s, err := scanSubtaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "subtask", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query subtask: %w", err)
	}
	return s, nil
}

// ListSubtasks retrieves all subtasks for a task ordered by sort_order.
func ListSubtasks(db *sql.DB, taskID string) ([]*models.Subtask, error) {
	rows, err := db.Query(`SELECT `+subtaskColumns+` FROM subtasks WHERE task_id = ? ORDER BY sort_order ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query subtasks: %w", err)
	}
	defer rows.Close()

	subtasks := make([]*models.Subtask, 0)
	for rows.Next() {
		s, err := scanSubtaskRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subtask row: %w", err)
		}
		subtasks = append(subtasks, s)
	}
	return subtasks, rows.Err()
}

// legalSubtaskTransitions mirrors the task state machine, minus in_review
// (subtasks have no review state, spec §3).
var legalSubtaskTransitions = map[models.SubtaskStatus][]models.SubtaskStatus{
	models.SubtaskStatusPending:    {models.SubtaskStatusInProgress, models.SubtaskStatusError},
	models.SubtaskStatusInProgress: {models.SubtaskStatusDone, models.SubtaskStatusError},
	models.SubtaskStatusDone:       {},
	models.SubtaskStatusError:      {models.SubtaskStatusPending, models.SubtaskStatusInProgress},
}

func isLegalSubtaskTransition(from, to models.SubtaskStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range legalSubtaskTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UpdateSubtaskStatus transitions a subtask's status. At most one subtask of
// a task may be in_progress at a time (spec §3); the caller is responsible
// for completing or erroring the current in_progress subtask first.
func UpdateSubtaskStatus(db *sql.DB, subtaskID string, to models.SubtaskStatus) (*models.Subtask, error) {
	var subtask *models.Subtask
	err := Transact(db, func(tx *sql.Tx) error {
		current, err := getSubtaskTx(tx, subtaskID)
		if err != nil {
			return err
		}
		if !isLegalSubtaskTransition(current.Status, to) {
			return &IllegalTransitionError{
				Entity: "subtask", ID: subtaskID,
				From: string(current.Status), To: string(to),
			}
		}

		if to == models.SubtaskStatusInProgress {
			var active int
			if err := tx.QueryRow(`
				SELECT COUNT(*) FROM subtasks WHERE task_id = ? AND status = 'in_progress' AND id != ?
			`, current.TaskID, subtaskID).Scan(&active); err != nil {
				return fmt.Errorf("check active subtasks: %w", err)
			}
			if active > 0 {
				return &IllegalTransitionError{
					Entity: "subtask", ID: subtaskID,
					From: string(current.Status), To: string(to),
				}
			}
		}

		if _, err := tx.Exec(`
			UPDATE subtasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, to, subtaskID); err != nil {
			return fmt.Errorf("update subtask status: %w", err)
		}

		subtask, err = getSubtaskTx(tx, subtaskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return subtask, nil
}

// NextPendingSubtask returns the lowest sort_order pending subtask of a task,
// or nil if none remain.
func NextPendingSubtask(db *sql.DB, taskID string) (*models.Subtask, error) {
	row := db.QueryRow(`
		SELECT `+subtaskColumns+` FROM subtasks
		WHERE task_id = ? AND status = 'pending'
		ORDER BY sort_order ASC LIMIT 1
	`, taskID)
	s, err := scanSubtaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query next pending subtask: %w", err)
	}
	return s, nil
}
