// Package feeder implements the prepare/launch split of spec §4.5: the
// autonomous pipeline must not hold the store lock across external process
// spawns, nor leave tasks stuck if a launch fails.
package feeder

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/claustre/claustre/internal/app"
	"github.com/claustre/claustre/internal/models"
	"github.com/claustre/claustre/internal/protocol"
	"github.com/claustre/claustre/internal/store"
)

// Prepared is the outcome of PrepareNextTask: a pure-DB decision ready for
// an external launch.
type Prepared struct {
	TaskID    string
	SessionID string
	TabLabel  string
	Prompt    string
}

// PrepareNextTask performs spec §4.5's pure-DB half: honoring the rate-limit
// flag, selecting the next pending task, and marking it in_progress with the
// session set to working. Those two updates are separate store calls, each in
// its own transaction; a failure of the second does not undo the first. It
// returns (nil, nil) for
// "nothing to do" rather than an error, matching the teacher's convention of
// reserving errors for unexpected failures.
func PrepareNextTask(db *sql.DB, sessionID string) (*Prepared, error) {
	rl, err := store.GetRateLimitState(db)
	if err != nil {
		return nil, fmt.Errorf("check rate limit state: %w", err)
	}
	if rl.IsRateLimited {
		return nil, nil
	}

	task, err := store.NextPendingTaskForSession(db, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find next pending task: %w", err)
	}
	if task == nil {
		return nil, nil
	}

	session, err := store.GetSession(db, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	prompt := task.Description
	if task.Mode == models.TaskModeAutonomous {
		prompt += models.AutonomousSuffix
	}

	if _, err := store.UpdateTaskStatus(db, task.ID, models.TaskStatusInProgress); err != nil {
		return nil, fmt.Errorf("start task: %w", err)
	}
	if err := store.UpdateSessionActivity(db, sessionID, models.ClaudeStatusWorking, "starting "+task.Title); err != nil {
		return nil, fmt.Errorf("mark session working: %w", err)
	}

	return &Prepared{TaskID: task.ID, SessionID: sessionID, TabLabel: session.TabLabel, Prompt: prompt}, nil
}

// LaunchPrepared injects the prepared prompt into the session's already-
// running session-host as an Input frame over the session socket (spec
// §4.5: "side effect only"). This never touches the store.
func LaunchPrepared(ctx context.Context, p *Prepared) error {
	socketPath, err := app.SocketPath(p.SessionID)
	if err != nil {
		return fmt.Errorf("resolve socket path: %w", err)
	}
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to session-host: %w", err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	w := protocol.NewWriter(conn)
	if err := w.WriteClientMessage(protocol.ClientMessage{
		Type:    protocol.TypeInput,
		Payload: []byte(p.Prompt + "\n"),
	}); err != nil {
		return fmt.Errorf("inject prompt: %w", err)
	}
	return nil
}

// RevertPrepared undoes PrepareNextTask's store mutation after a launch
// failure: the task returns to pending and the session is marked error with
// an explanatory message (spec §4.5).
func RevertPrepared(db *sql.DB, p *Prepared, cause error) error {
	if _, err := store.UpdateTaskStatus(db, p.TaskID, models.TaskStatusPending); err != nil {
		return fmt.Errorf("revert task to pending: %w", err)
	}
	message := "launch failed"
	if cause != nil {
		message = "launch failed: " + cause.Error()
	}
	if err := store.UpdateSessionActivity(db, p.SessionID, models.ClaudeStatusError, message); err != nil {
		return fmt.Errorf("mark session error: %w", err)
	}
	return nil
}

// FeedNextTask composes Prepare/Launch/Revert and is the sole path used by
// both the RPC server and the `feed-next` CLI (spec §4.5).
func FeedNextTask(ctx context.Context, db *sql.DB, sessionID string) error {
	prepared, err := PrepareNextTask(db, sessionID)
	if err != nil {
		return fmt.Errorf("prepare next task: %w", err)
	}
	if prepared == nil {
		return nil // nothing to feed, or rate-limited: not an error
	}

	if err := LaunchPrepared(ctx, prepared); err != nil {
		if revertErr := RevertPrepared(db, prepared, err); revertErr != nil {
			return fmt.Errorf("launch failed (%v) and revert failed: %w", err, revertErr)
		}
		return fmt.Errorf("launch prepared task: %w", err)
	}
	return nil
}
