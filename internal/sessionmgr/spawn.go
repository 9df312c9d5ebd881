package sessionmgr

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/claustre/claustre/internal/app"
)

const socketWaitPoll = 50 * time.Millisecond

// spawnSessionHost launches a detached `claustre session-host` subprocess
// and waits for its Unix socket to appear (spec §4.4 step 8). Stdio is
// nulled out and the child is placed in its own session via SysProcAttr so
// a dashboard restart or terminal close does not signal it.
func spawnSessionHost(sessionID, worktreePath string, command []string) error {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open /dev/null: %w", err)
	}
	defer devNull.Close()

	args := append([]string{"session-host", "--session-id", sessionID, "--worktree-path", worktreePath, "--"}, command...)
	selfPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}

	cmd := exec.Command(selfPath, args...)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn session-host: %w", err)
	}
	// The parent does not wait on this child: it is meant to outlive us.
	// Release lets the OS reparent it instead of leaving a zombie-avoidance
	// goroutine blocked on Wait.
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("release session-host process: %w", err)
	}

	return waitForSocket(sessionID)
}

// waitForSocket polls for the session-host's socket file every 50ms, capped
// at app.SessionHostWaitSeconds (5s by default) (spec §4.4 step 8, §5
// suspension points).
func waitForSocket(sessionID string) error {
	socketPath, err := app.SocketPath(sessionID)
	if err != nil {
		return fmt.Errorf("resolve socket path: %w", err)
	}

	waitCap := time.Duration(app.SessionHostWaitSeconds()) * time.Second
	deadline := time.Now().Add(waitCap)
	for {
		if _, err := os.Stat(socketPath); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("session-host socket %s did not appear within %s", socketPath, waitCap)
		}
		time.Sleep(socketWaitPoll)
	}
}
