package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/claustre/claustre/internal/models"
)

var sessionColumns = `id, project_id, branch_name, worktree_path, tab_label, claude_status,
	status_message, last_activity_at, files_changed, lines_added, lines_removed,
	claude_progress, created_at, closed_at`

func scanSessionRow(row interface{ Scan(...any) error }) (*models.Session, error) {
	var s models.Session
	var progress string
	var closedAt sql.NullTime

	if err := row.Scan(
		&s.ID, &s.ProjectID, &s.BranchName, &s.WorktreePath, &s.TabLabel, &s.ClaudeStatus,
		&s.StatusMessage, &s.LastActivityAt, &s.FilesChanged, &s.LinesAdded, &s.LinesRemoved,
		&progress, &s.CreatedAt, &closedAt,
	); err != nil {
		return nil, err
	}
	steps, err := unmarshalProgress(progress)
	if err != nil {
		return nil, err
	}
	s.ClaudeProgress = steps
	if closedAt.Valid {
		s.ClosedAt = &closedAt.Time
	}
	return &s, nil
}

// CreateSession inserts a new session row for a worktree/branch pair.
func CreateSession(db *sql.DB, projectID, branchName, worktreePath, tabLabel string) (*models.Session, error) {
	var session *models.Session
	err := Transact(db, func(tx *sql.Tx) error {
		s, err := CreateSessionTx(tx, projectID, branchName, worktreePath, tabLabel)
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// CreateSessionTx inserts and returns a session inside an existing transaction.
func CreateSessionTx(tx *sql.Tx, projectID, branchName, worktreePath, tabLabel string) (*models.Session, error) {
	id := newID()

	if _, err := tx.Exec(`
		INSERT INTO sessions (id, project_id, branch_name, worktree_path, tab_label,
			claude_status, status_message, last_activity_at, claude_progress)
		VALUES (?, ?, ?, ?, ?, 'idle', '', CURRENT_TIMESTAMP, '[]')
	`, id, projectID, branchName, worktreePath, tabLabel); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return getSessionTx(tx, id)
}

func getSessionTx(tx *sql.Tx, id string) (*models.Session, error) {
	row := tx.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "session", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	return s, nil
}

// GetSession retrieves a session by ID.
func GetSession(db *sql.DB, id string) (*models.Session, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "session", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return s, nil
}

// GetDefaultSession returns the project's active session with
// branch_name = "default", or nil if none exists (spec §4.1).
func GetDefaultSession(db *sql.DB, projectID string) (*models.Session, error) {
	row := db.QueryRow(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE project_id = ? AND branch_name = ? AND closed_at IS NULL
	`, projectID, models.DefaultBranchName)
	s, err := scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query default session: %w", err)
	}
	return s, nil
}

// FindActiveSessionByWorktree looks up an active session bound to a worktree
// path, for idempotent reuse when a create request repeats (spec §4.1, §4.4).
func FindActiveSessionByWorktree(db *sql.DB, worktreePath string) (*models.Session, error) {
	row := db.QueryRow(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE worktree_path = ? AND closed_at IS NULL
	`, worktreePath)
	s, err := scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session by worktree: %w", err)
	}
	return s, nil
}

// ListAllActiveSessions returns every open session, for startup reconciliation
// (spec §4.1, §4.8).
func ListAllActiveSessions(db *sql.DB) ([]*models.Session, error) {
	rows, err := db.Query(`SELECT ` + sessionColumns + ` FROM sessions WHERE closed_at IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListActiveSessionsForProject returns every open session belonging to a
// project, for teardown before project deletion (spec §3, §8 scenario 6).
func ListActiveSessionsForProject(db *sql.DB, projectID string) ([]*models.Session, error) {
	rows, err := db.Query(`
		SELECT `+sessionColumns+` FROM sessions WHERE project_id = ? AND closed_at IS NULL ORDER BY created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query active sessions for project: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// HasReviewSessions reports whether the project has any active session
// awaiting review (claude_status='done', spec §4.1).
func HasReviewSessions(db *sql.DB, projectID string) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sessions
		WHERE project_id = ? AND claude_status = 'done' AND closed_at IS NULL
	`, projectID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query review sessions: %w", err)
	}
	return count > 0, nil
}

// UpdateSessionActivity records a claude_status/status_message transition
// driven by an RPC event (spec §3, §4.6), refreshing last_activity_at.
func UpdateSessionActivity(db *sql.DB, id string, status models.ClaudeStatus, message string) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE sessions SET claude_status = ?, status_message = ?, last_activity_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, status, message, id)
		if err != nil {
			return fmt.Errorf("update session activity: %w", err)
		}
		return nil
	})
}

// UpdateSessionProgress overwrites a session's claude_progress step list.
func UpdateSessionProgress(db *sql.DB, id string, steps []models.ProgressStep) error {
	raw, err := marshalProgress(steps)
	if err != nil {
		return err
	}
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE sessions SET claude_progress = ?, last_activity_at = CURRENT_TIMESTAMP WHERE id = ?
		`, raw, id)
		if err != nil {
			return fmt.Errorf("update session progress: %w", err)
		}
		return nil
	})
}

// UpdateSessionDiffStat records the worktree's changed-file and line counts,
// captured at teardown time (spec §4.4).
func UpdateSessionDiffStat(db *sql.DB, id string, filesChanged, linesAdded, linesRemoved int) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE sessions SET files_changed = ?, lines_added = ?, lines_removed = ? WHERE id = ?
		`, filesChanged, linesAdded, linesRemoved, id)
		if err != nil {
			return fmt.Errorf("update session diff stat: %w", err)
		}
		return nil
	})
}

// CloseSession marks a session torn down.
func CloseSession(db *sql.DB, id string) error {
	return Transact(db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`UPDATE sessions SET closed_at = CURRENT_TIMESTAMP WHERE id = ? AND closed_at IS NULL`, id)
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		ra, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if ra == 0 {
			return &NotFoundError{Entity: "session", ID: id}
		}
		return nil
	})
}
