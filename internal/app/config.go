package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/claustre/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "claustre"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# claustre configuration
# Run: claustre --help

# Optional: override the SQLite database location.
# Can also be set via CLAUSTRE_DB_PATH or --db-path.
# db_path: ~/.config/claustre/store.db

# Optional: override the base directory for sockets/pids/worktrees/tmp.
# Can also be set via CLAUSTRE_BASE_DIR or --base-dir.
# base_dir: ~/.config/claustre
`

// BaseDir resolves the process-wide base directory that owns sockets, pids,
// worktrees, and tmp progress files (spec §6 filesystem layout).
//
// Precedence: CLI override (SetBaseDirOverride) > CLAUSTRE_BASE_DIR env >
// config.yaml base_dir > ConfigDir().
func BaseDir() (string, error) {
	if override := getBaseDirOverride(); override != "" {
		return override, nil
	}
	if envDir := os.Getenv("CLAUSTRE_BASE_DIR"); envDir != "" {
		return envDir, nil
	}
	s, err := LoadSettings()
	if err == nil && s.BaseDir != "" {
		return s.BaseDir, nil
	}
	return ConfigDir()
}

// SocketsDir returns <base>/sockets, creating it if missing.
func SocketsDir() (string, error) { return ensureSubdir("sockets") }

// PIDsDir returns <base>/pids, creating it if missing.
func PIDsDir() (string, error) { return ensureSubdir("pids") }

// WorktreesDir returns <base>/worktrees, creating it if missing.
func WorktreesDir() (string, error) { return ensureSubdir("worktrees") }

// TmpDir returns <base>/tmp, creating it if missing.
func TmpDir() (string, error) { return ensureSubdir("tmp") }

func ensureSubdir(name string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	return dir, nil
}

// SocketPath returns <base>/sockets/<sessionID>.sock.
func SocketPath(sessionID string) (string, error) {
	dir, err := SocketsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sessionID+".sock"), nil
}

// PIDPath returns <base>/pids/<sessionID>.pid.
func PIDPath(sessionID string) (string, error) {
	dir, err := PIDsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sessionID+".pid"), nil
}

// ProgressPath returns <base>/tmp/<sessionID>/progress.json.
func ProgressPath(sessionID string) (string, error) {
	dir, err := TmpDir()
	if err != nil {
		return "", err
	}
	sessionDir := filepath.Join(dir, sessionID)
	if err := os.MkdirAll(sessionDir, 0750); err != nil {
		return "", err
	}
	return filepath.Join(sessionDir, "progress.json"), nil
}

// RPCSocketPath returns <base>/sockets/rpc.sock, the process-wide RPC server
// socket the agent connects to via .mcp.json.
func RPCSocketPath() (string, error) {
	dir, err := SocketsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "rpc.sock"), nil
}
