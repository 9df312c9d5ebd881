// Package sessionmgr implements the session lifecycle of spec §4.4: creating
// and reusing worktree-backed sessions, spawning their detached session-host
// process, tearing them down, and reconciling on-disk state with the store.
package sessionmgr

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/claustre/claustre/internal/app"
	"github.com/claustre/claustre/internal/models"
	"github.com/claustre/claustre/internal/store"
)

// CreateSessionParams describes the session a caller wants (spec §4.4).
type CreateSessionParams struct {
	ProjectID string
	Branch    string
	TaskID    string // optional: task to assign immediately
}

// CreateSession is the canonical, idempotent session creation described by
// spec §4.4's nine steps. Each numbered comment below corresponds to one
// spec step.
func CreateSession(ctx context.Context, db *sql.DB, params CreateSessionParams) (*models.Session, error) {
	// 1. Resolve project; validate repo path.
	project, err := store.GetProject(db, params.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve project: %w", err)
	}
	if _, err := os.Stat(project.RepoPath); err != nil {
		return nil, fmt.Errorf("validate repo path %s: %w", project.RepoPath, err)
	}

	worktreesDir, err := app.WorktreesDir()
	if err != nil {
		return nil, fmt.Errorf("resolve worktrees dir: %w", err)
	}
	worktreePath := filepath.Join(worktreesDir, project.Name, params.Branch)

	// 2. create_worktree.
	created, err := createWorktree(ctx, project.RepoPath, worktreePath, params.Branch)
	if err != nil {
		return nil, fmt.Errorf("create worktree: %w", err)
	}

	// 3. write_merged_config; failure rolls back a newly created worktree.
	if err := writeMergedConfig(worktreePath); err != nil {
		if created {
			removeWorktree(ctx, project.RepoPath, worktreePath)
		}
		return nil, fmt.Errorf("write merged config: %w", err)
	}

	// 4. Optional setup hook, best-effort.
	runSetupHook(worktreePath, project.RepoPath)

	// 5. Persist or reuse the Session row.
	session, err := store.FindActiveSessionByWorktree(db, worktreePath)
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	reused := session != nil
	if session == nil {
		tabLabel := params.Branch
		session, err = store.CreateSession(db, project.ID, params.Branch, worktreePath, tabLabel)
		if err != nil {
			if created {
				removeWorktree(ctx, project.RepoPath, worktreePath)
			}
			return nil, fmt.Errorf("insert session: %w", err)
		}
	}

	// 6. Write .mcp.json / session-id marker pointing at the RPC socket.
	if err := writeSessionFiles(worktreePath, session.ID); err != nil {
		if !reused {
			_ = store.CloseSession(db, session.ID)
		}
		if created {
			removeWorktree(ctx, project.RepoPath, worktreePath)
		}
		return nil, fmt.Errorf("write session files: %w", err)
	}

	if reused && params.TaskID == "" {
		return session, nil
	}

	var plan launchPlan
	var subtasks []*models.Subtask
	if params.TaskID != "" {
		task, err := store.GetTask(db, params.TaskID)
		if err != nil {
			return nil, fmt.Errorf("resolve task: %w", err)
		}
		subtasks, err = store.ListSubtasks(db, task.ID)
		if err != nil {
			return nil, fmt.Errorf("list subtasks: %w", err)
		}
		// 7. Decide the launch command.
		plan = decideLaunch(task, subtasks)
		if plan.ActiveSubtask != nil {
			if _, err := store.UpdateSubtaskStatus(db, plan.ActiveSubtask.ID, models.SubtaskStatusInProgress); err != nil {
				return nil, fmt.Errorf("start first subtask: %w", err)
			}
		}
	}

	if plan.Prompt != "" {
		// 8. Spawn the detached session-host; revert on failure without
		// tearing down the worktree.
		if err := spawnSessionHost(session.ID, worktreePath, agentCommand(plan.Prompt)); err != nil {
			if params.TaskID != "" {
				_ = store.AssignTaskSession(db, params.TaskID, nil, true)
				_, _ = store.UpdateTaskStatus(db, params.TaskID, models.TaskStatusPending)
			}
			_ = store.UpdateSessionActivity(db, session.ID, models.ClaudeStatusError, "session-host failed to start: "+err.Error())
			return nil, fmt.Errorf("spawn session-host: %w", err)
		}

		// 9. Assign the task, transition it and the session to working.
		if params.TaskID != "" {
			sessionID := session.ID
			if err := store.AssignTaskSession(db, params.TaskID, &sessionID, false); err != nil {
				return nil, fmt.Errorf("assign task session: %w", err)
			}
			if _, err := store.UpdateTaskStatus(db, params.TaskID, models.TaskStatusInProgress); err != nil {
				return nil, fmt.Errorf("start task: %w", err)
			}
		}
		if err := store.UpdateSessionActivity(db, session.ID, models.ClaudeStatusWorking, "started"); err != nil {
			return nil, fmt.Errorf("mark session working: %w", err)
		}
	}

	return store.GetSession(db, session.ID)
}

// TeardownSession implements spec §4.4's teardown: best-effort shutdown and
// cleanup, closing the Session row last so a mid-teardown crash leaves the
// row recoverable by the reconciler.
func TeardownSession(ctx context.Context, db *sql.DB, sessionID string) error {
	session, err := store.GetSession(db, sessionID)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}

	// 1. Best-effort shutdown + socket/pid cleanup.
	bestEffortShutdown(sessionID)

	// 2. Best-effort diff stat.
	if filesChanged, linesAdded, linesRemoved, err := diffStat(ctx, session.WorktreePath); err == nil {
		_ = store.UpdateSessionDiffStat(db, sessionID, filesChanged, linesAdded, linesRemoved)
	}

	project, err := store.GetProject(db, session.ProjectID)
	if err == nil {
		// 3. git worktree remove (best-effort).
		removeWorktree(ctx, project.RepoPath, session.WorktreePath)
		// 4. git branch -d (safe delete, best-effort).
		deleteBranch(ctx, project.RepoPath, session.BranchName)
	}

	// 5. Mark the Session row closed.
	return store.CloseSession(db, sessionID)
}

// ReconcileSessions closes any active session whose worktree has vanished
// from disk (spec §4.4 "Reconciliation on startup", §4.8 step 2).
func ReconcileSessions(db *sql.DB) error {
	sessions, err := store.ListAllActiveSessions(db)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	for _, s := range sessions {
		if _, err := os.Stat(s.WorktreePath); os.IsNotExist(err) {
			if err := store.CloseSession(db, s.ID); err != nil {
				return fmt.Errorf("close session %s for missing worktree: %w", s.ID, err)
			}
		}
	}
	return nil
}

// AssignToDefaultSession finds or creates the project's default-branch
// session and assigns a task to it (spec §4.4 "Default session"). started
// reports whether the task was launched immediately versus left queued.
func AssignToDefaultSession(ctx context.Context, db *sql.DB, projectID, taskID string) (started bool, err error) {
	existing, err := store.GetDefaultSession(db, projectID)
	if err != nil {
		return false, fmt.Errorf("find default session: %w", err)
	}

	if existing == nil {
		session, err := CreateSession(ctx, db, CreateSessionParams{ProjectID: projectID, Branch: models.DefaultBranchName, TaskID: taskID})
		if err != nil {
			return false, err
		}
		return session.ClaudeStatus == models.ClaudeStatusWorking, nil
	}

	sessionID := existing.ID
	if err := store.AssignTaskSession(db, taskID, &sessionID, false); err != nil {
		return false, fmt.Errorf("assign task to default session: %w", err)
	}

	hasInProgress, err := store.HasInProgressTaskForSession(db, sessionID)
	if err != nil {
		return false, err
	}
	if existing.ClaudeStatus != models.ClaudeStatusIdle || hasInProgress {
		return false, nil
	}

	task, err := store.GetTask(db, taskID)
	if err != nil {
		return false, fmt.Errorf("resolve task: %w", err)
	}
	subtasks, err := store.ListSubtasks(db, task.ID)
	if err != nil {
		return false, fmt.Errorf("list subtasks: %w", err)
	}
	plan := decideLaunch(task, subtasks)
	if plan.ActiveSubtask != nil {
		if _, err := store.UpdateSubtaskStatus(db, plan.ActiveSubtask.ID, models.SubtaskStatusInProgress); err != nil {
			return false, fmt.Errorf("start first subtask: %w", err)
		}
	}
	if err := spawnSessionHost(sessionID, existing.WorktreePath, agentCommand(plan.Prompt)); err != nil {
		_, _ = store.UpdateTaskStatus(db, taskID, models.TaskStatusPending)
		_ = store.UpdateSessionActivity(db, sessionID, models.ClaudeStatusError, "session-host failed to start: "+err.Error())
		return false, fmt.Errorf("spawn session-host: %w", err)
	}
	if _, err := store.UpdateTaskStatus(db, taskID, models.TaskStatusInProgress); err != nil {
		return false, fmt.Errorf("start task: %w", err)
	}
	if err := store.UpdateSessionActivity(db, sessionID, models.ClaudeStatusWorking, "started"); err != nil {
		return false, fmt.Errorf("mark session working: %w", err)
	}
	return true, nil
}
