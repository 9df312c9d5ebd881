package sessionmgr

import (
	"net"
	"os"
	"time"

	"github.com/claustre/claustre/internal/app"
	"github.com/claustre/claustre/internal/protocol"
)

// bestEffortShutdown connects to the session's socket and writes a Shutdown
// frame, then removes the socket and PID files regardless of whether the
// connect/write succeeded (spec §4.4 teardown step 1).
func bestEffortShutdown(sessionID string) {
	socketPath, err := app.SocketPath(sessionID)
	if err == nil {
		if conn, dialErr := net.DialTimeout("unix", socketPath, 500*time.Millisecond); dialErr == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(500 * time.Millisecond))
			_ = protocol.NewWriter(conn).WriteClientMessage(protocol.ClientMessage{Type: protocol.TypeShutdown})
			_ = conn.Close()
		}
		_ = os.Remove(socketPath)
	}

	if pidPath, err := app.PIDPath(sessionID); err == nil {
		_ = os.Remove(pidPath)
	}
}
