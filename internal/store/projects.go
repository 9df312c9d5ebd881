package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/claustre/claustre/internal/models"
)

// CreateProject inserts a new project and returns the created record.
func CreateProject(db *sql.DB, name, repoPath string) (*models.Project, error) {
	var project *models.Project

	err := Transact(db, func(tx *sql.Tx) error {
		p, err := CreateProjectTx(tx, name, repoPath)
		if err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// CreateProjectTx inserts and returns a project inside an existing transaction.
func CreateProjectTx(tx *sql.Tx, name, repoPath string) (*models.Project, error) {
	id := newID()

	if _, err := tx.Exec(`
		INSERT INTO projects (id, name, repo_path, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, id, name, repoPath); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	return getProjectTx(tx, id)
}

func getProjectTx(tx *sql.Tx, id string) (*models.Project, error) {
	var p models.Project
	err := tx.QueryRow(`
		SELECT id, name, repo_path, created_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.RepoPath, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "project", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch project: %w", err)
	}
	return &p, nil
}

// GetProject retrieves a project by ID.
func GetProject(db *sql.DB, id string) (*models.Project, error) {
	var p models.Project
	err := RetryWithBackoff(context.Background(), func() error {
		return db.QueryRow(`
			SELECT id, name, repo_path, created_at FROM projects WHERE id = ?
		`, id).Scan(&p.ID, &p.Name, &p.RepoPath, &p.CreatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "project", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return &p, nil
}

// ListProjects retrieves all projects ordered by creation time (newest first).
func ListProjects(db *sql.DB) ([]*models.Project, error) {
	var projects []*models.Project

	err := RetryWithBackoff(context.Background(), func() error {
		rows, err := db.Query(`
			SELECT id, name, repo_path, created_at FROM projects ORDER BY created_at DESC, rowid DESC
		`)
		if err != nil {
			return fmt.Errorf("query projects: %w", err)
		}
		defer rows.Close()

		projects = make([]*models.Project, 0)
		for rows.Next() {
			var p models.Project
			if err := rows.Scan(&p.ID, &p.Name, &p.RepoPath, &p.CreatedAt); err != nil {
				return fmt.Errorf("scan project row: %w", err)
			}
			projects = append(projects, &p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// DeleteProject removes a project and its dependent tasks and sessions in one
// transaction (spec §4.1 op 1). Callers are expected to have already torn
// down any active sessions; the foreign keys cascade regardless so a
// transaction failure leaves project, tasks, and sessions all present.
func DeleteProject(db *sql.DB, id string) error {
	return Transact(db, func(tx *sql.Tx) error {
		return DeleteProjectTx(tx, id)
	})
}

// DeleteProjectTx deletes a project by ID inside an existing transaction.
// Dependent tasks and sessions are removed via ON DELETE CASCADE foreign keys.
func DeleteProjectTx(tx *sql.Tx, id string) error {
	result, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if ra == 0 {
		return &NotFoundError{Entity: "project", ID: id}
	}
	return nil
}
