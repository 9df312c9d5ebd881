package rpc

import (
	"log/slog"
)

// appendSessionLog forwards an agent's claustre_log call into the process
// log, tagged with its session so it's greppable per-session. Spec §4.6
// calls this sink "opaque" and "best-effort": there is no reader contract to
// honor beyond getting the line onto disk somewhere.
func appendSessionLog(sessionID, level, message string) error {
	attrs := []any{"session_id", sessionID}
	switch level {
	case "error":
		slog.Error(message, attrs...)
	case "warn", "warning":
		slog.Warn(message, attrs...)
	case "debug":
		slog.Debug(message, attrs...)
	default:
		slog.Info(message, attrs...)
	}
	return nil
}
