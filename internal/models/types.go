package models

import "time"

// ID Strategy: every entity uses a UUIDv4 string primary key (spec §3 calls
// these "stable opaque identifiers (UUID strings)"). Generation lives in
// store/id.go so callers never construct IDs by hand.

// AutonomousSuffix is appended to an autonomous task's prompt so the agent
// reports completion through the RPC tool surface on its own, rather than
// waiting for a human to close the loop. Its exact wording is an
// agent-prompt concern, not a state-machine concern (spec glossary).
const AutonomousSuffix = "\n\nWhen finished, call claustre_task_done with a summary of the work and, if applicable, a pr_url."

// TaskMode selects how a task's session is driven once assigned.
type TaskMode string

const (
	TaskModeSupervised TaskMode = "supervised"
	TaskModeAutonomous TaskMode = "autonomous"
)

// TaskStatus represents the current state of a task (spec §3, §4.1).
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusInReview   TaskStatus = "in_review"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusError      TaskStatus = "error"
)

// ParseTaskStatus is permissive about legacy storage values (spec §9: "legacy
// in_review... FromString permissive"). Unknown values collapse to
// TaskStatusError rather than panicking, since a corrupt column should not
// crash the store layer.
func ParseTaskStatus(s string) TaskStatus {
	switch TaskStatus(s) {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusInReview, TaskStatusDone, TaskStatusError:
		return TaskStatus(s)
	default:
		return TaskStatusError
	}
}

// IsTerminal reports whether no further agent work is expected on this task.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusError
}

// SubtaskStatus represents the current state of a subtask (spec §3).
type SubtaskStatus string

const (
	SubtaskStatusPending    SubtaskStatus = "pending"
	SubtaskStatusInProgress SubtaskStatus = "in_progress"
	SubtaskStatusDone       SubtaskStatus = "done"
	SubtaskStatusError      SubtaskStatus = "error"
)

// ClaudeStatus represents a session's observed agent activity (spec §3).
type ClaudeStatus string

const (
	ClaudeStatusIdle           ClaudeStatus = "idle"
	ClaudeStatusWorking        ClaudeStatus = "working"
	ClaudeStatusWaitingInput   ClaudeStatus = "waiting_for_input"
	ClaudeStatusDone           ClaudeStatus = "done"
	ClaudeStatusError          ClaudeStatus = "error"
)

// ParseClaudeStatus is permissive: unrecognized values map to error rather
// than propagating garbage through status transitions.
func ParseClaudeStatus(s string) ClaudeStatus {
	switch ClaudeStatus(s) {
	case ClaudeStatusIdle, ClaudeStatusWorking, ClaudeStatusWaitingInput, ClaudeStatusDone, ClaudeStatusError:
		return ClaudeStatus(s)
	default:
		return ClaudeStatusError
	}
}

// DefaultBranchName is the reserved branch name recognized as a project's
// default session (spec §3, §4.4, glossary).
const DefaultBranchName = "default"

// LimitType enumerates the two rate-limit windows the agent can report.
type LimitType string

const (
	LimitType5h LimitType = "5h"
	LimitType7d LimitType = "7d"
)

// Project is a tracked source repository (spec §3).
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RepoPath  string    `json:"repo_path"`
	CreatedAt time.Time `json:"created_at"`
}

// ProgressStep is one entry of a session's claude_progress JSON list
// (spec §3, §4.7).
type ProgressStep struct {
	Subject string `json:"subject"`
	Status  string `json:"status"`
}

// Task is a unit of review scope; at most one agent branch per task (spec §3).
type Task struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Mode           TaskMode   `json:"mode"`
	Status         TaskStatus `json:"status"`
	SessionID      *string    `json:"session_id,omitempty"`
	SortOrder      int        `json:"sort_order"`
	NeedsNewSession bool      `json:"needs_new_session"`
	PRURL          *string    `json:"pr_url,omitempty"`
	InputTokens    int64      `json:"input_tokens"`
	OutputTokens   int64      `json:"output_tokens"`
	CostUSD        float64    `json:"cost_usd"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// IsAssigned reports whether the task currently belongs to a session.
func (t *Task) IsAssigned() bool { return t.SessionID != nil && *t.SessionID != "" }

// Subtask is an ordered step of a Task executed sequentially within the same
// session (spec §3).
type Subtask struct {
	ID          string        `json:"id"`
	TaskID      string        `json:"task_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      SubtaskStatus `json:"status"`
	SortOrder   int           `json:"sort_order"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Session is one worktree + branch + one detached agent process (spec §3).
type Session struct {
	ID              string         `json:"id"`
	ProjectID       string         `json:"project_id"`
	BranchName      string         `json:"branch_name"`
	WorktreePath    string         `json:"worktree_path"`
	TabLabel        string         `json:"tab_label"`
	ClaudeStatus    ClaudeStatus   `json:"claude_status"`
	StatusMessage   string         `json:"status_message"`
	LastActivityAt  time.Time      `json:"last_activity_at"`
	FilesChanged    int            `json:"files_changed"`
	LinesAdded      int            `json:"lines_added"`
	LinesRemoved    int            `json:"lines_removed"`
	ClaudeProgress  []ProgressStep `json:"claude_progress"`
	CreatedAt       time.Time      `json:"created_at"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
}

// IsActive reports whether the session has not been torn down.
func (s *Session) IsActive() bool { return s.ClosedAt == nil }

// IsDefault reports whether this is the project's default/queue session.
func (s *Session) IsDefault() bool { return s.BranchName == DefaultBranchName }

// RateLimitState is a process-wide singleton row (spec §3).
type RateLimitState struct {
	IsRateLimited bool       `json:"is_rate_limited"`
	LimitType     *LimitType `json:"limit_type,omitempty"`
	RateLimitedAt *time.Time `json:"rate_limited_at,omitempty"`
	ResetAt       *time.Time `json:"reset_at,omitempty"`
	Usage5hPct    float64    `json:"usage_5h_pct"`
	Usage7dPct    float64    `json:"usage_7d_pct"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ShouldAutoClear reports whether the reconciler should clear the flag
// because now is past the recorded reset time (spec §3, §8).
func (r *RateLimitState) ShouldAutoClear(now time.Time) bool {
	return r.IsRateLimited && r.ResetAt != nil && now.After(*r.ResetAt)
}
