// Package reconciler implements the startup reconciliation steps of spec
// §4.8, run when the dashboard boots: close sessions whose worktrees have
// vanished, sweep stale sockets/PIDs, and reconnect to sockets that are
// still alive.
package reconciler

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/claustre/claustre/internal/app"
	"github.com/claustre/claustre/internal/models"
	"github.com/claustre/claustre/internal/sessionmgr"
	"github.com/claustre/claustre/internal/store"
)

// Result summarizes what reconciliation did, for CLI/log reporting.
type Result struct {
	ClosedSessions   int      `json:"closed_sessions"`
	RemovedSockets   []string `json:"removed_sockets"`
	ReconnectedCount int      `json:"reconnected_count"`
}

// Reconcile runs the four steps of spec §4.8 in order. Schema migration
// (step 1) has already happened by the time db is opened via
// store.InitDBWithPath, so this covers steps 2-4: session reconciliation,
// stale socket/PID cleanup, and auto-reconnect probing. It also clears an
// expired rate limit (spec §3/§8: "when now exceeds reset_at, the
// reconciler transitions it back to false").
func Reconcile(db *sql.DB) (Result, error) {
	var result Result

	if err := clearExpiredRateLimit(db); err != nil {
		return result, fmt.Errorf("clear expired rate limit: %w", err)
	}

	before, err := store.ListAllActiveSessions(db)
	if err != nil {
		return result, fmt.Errorf("list active sessions before reconcile: %w", err)
	}

	if err := sessionmgr.ReconcileSessions(db); err != nil {
		return result, fmt.Errorf("reconcile sessions: %w", err)
	}

	after, err := store.ListAllActiveSessions(db)
	if err != nil {
		return result, fmt.Errorf("list active sessions after reconcile: %w", err)
	}
	result.ClosedSessions = len(before) - len(after)

	removed, err := cleanupStaleSockets()
	if err != nil {
		return result, fmt.Errorf("cleanup stale sockets: %w", err)
	}
	result.RemovedSockets = removed

	reconnected, err := autoReconnect(after)
	result.ReconnectedCount = reconnected
	if err != nil {
		return result, fmt.Errorf("auto-reconnect: %w", err)
	}

	return result, nil
}

// clearExpiredRateLimit clears the singleton rate-limit flag once its
// recorded reset_at has passed (spec §3, §8 scenario 3).
func clearExpiredRateLimit(db *sql.DB) error {
	rl, err := store.GetRateLimitState(db)
	if err != nil {
		return err
	}
	if !rl.ShouldAutoClear(time.Now()) {
		return nil
	}
	return store.ClearRateLimit(db)
}

// cleanupStaleSockets scans $BASE/sockets/*.sock; for each, reads the
// matching PID file and probes liveness with a zero-signal kill. Sockets
// whose process is gone (or whose PID file is missing) are removed along
// with their PID file (spec §4.8 step 3).
func cleanupStaleSockets() ([]string, error) {
	socketsDir, err := app.SocketsDir()
	if err != nil {
		return nil, err
	}
	pidsDir, err := app.PIDsDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(socketsDir)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".sock") || name == "rpc.sock" {
			continue
		}
		sessionID := strings.TrimSuffix(name, ".sock")
		sockPath := filepath.Join(socketsDir, name)
		pidPath := filepath.Join(pidsDir, sessionID+".pid")

		if isAlive(pidPath) {
			continue
		}

		_ = os.Remove(sockPath)
		_ = os.Remove(pidPath)
		removed = append(removed, sessionID)
	}
	return removed, nil
}

// isAlive reports whether the PID file names a running process, using a
// zero-signal kill probe.
func isAlive(pidPath string) bool {
	b, err := os.ReadFile(pidPath)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// autoReconnect opens a short-lived client connection to every remaining
// live socket that corresponds to an open DB session, confirming the
// session-host is actually reachable so a later dashboard attach doesn't
// stall (spec §4.8 step 4). There is no dashboard UI in this build to hand
// the connection to, so the probe connection is closed immediately after a
// successful dial.
func autoReconnect(sessions []*models.Session) (int, error) {
	count := 0
	var firstErr error
	for _, s := range sessions {
		sockPath, err := app.SocketPath(s.ID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if _, err := os.Stat(sockPath); errors.Is(err, os.ErrNotExist) {
			continue
		}

		conn, err := net.DialTimeout("unix", sockPath, 500*time.Millisecond)
		if err != nil {
			continue
		}
		_ = conn.Close()
		count++
	}
	return count, firstErr
}
