package sessionmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/claustre/claustre/internal/app"
)

// hookScripts are installed verbatim into every worktree's .claude/hooks;
// their bodies only call the control CLI surface (spec Non-goals: hook
// script internals beyond that surface are out of scope), so claustre ships
// the minimal dispatcher needed to reach session-update/feed-next.
var hookScripts = map[string]string{
	"session-update.sh": "#!/bin/sh\nexec claustre session-update --session-id \"$CLAUSTRE_SESSION_ID\" \"$@\"\n",
	"feed-next.sh":       "#!/bin/sh\nexec claustre feed-next --session-id \"$CLAUSTRE_SESSION_ID\"\n",
}

// mcpConfig is the MCP-style config pointing an agent at the RPC socket
// (spec §6 filesystem layout: "<worktree>/.mcp.json").
type mcpConfig struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

type mcpServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// writeMergedConfig writes the fixed hook script set into the worktree's
// .claude/hooks (spec §4.4 step 3). It writes no per-session rules file and
// does not merge repo-level rule files.
func writeMergedConfig(worktree string) error {
	hooksDir := filepath.Join(worktree, ".claude", "hooks")
	if err := os.MkdirAll(hooksDir, 0750); err != nil {
		return fmt.Errorf("create hooks dir: %w", err)
	}
	for name, body := range hookScripts {
		if err := os.WriteFile(filepath.Join(hooksDir, name), []byte(body), 0755); err != nil {
			return fmt.Errorf("write hook %s: %w", name, err)
		}
	}
	return nil
}

// writeSessionFiles writes the session-id marker and MCP config pointing at
// the RPC socket (spec §4.4 step 6, §6 filesystem layout).
func writeSessionFiles(worktree, sessionID string) error {
	if err := os.WriteFile(filepath.Join(worktree, ".claustre_session_id"), []byte(sessionID), 0644); err != nil {
		return fmt.Errorf("write session id marker: %w", err)
	}

	rpcSocket, err := app.RPCSocketPath()
	if err != nil {
		return fmt.Errorf("resolve rpc socket path: %w", err)
	}

	cfg := mcpConfig{
		MCPServers: map[string]mcpServerEntry{
			"claustre": {
				Command: "claustre",
				Args:    []string{"rpc-client", "--socket", rpcSocket},
				Env:     map[string]string{"CLAUSTRE_SESSION_ID": sessionID},
			},
		},
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mcp config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree, ".mcp.json"), b, 0644); err != nil {
		return fmt.Errorf("write mcp config: %w", err)
	}
	return nil
}

// runSetupHook runs an optional user-defined setup script if present in the
// worktree or the repo (spec §4.4 step 4). Its failure is logged but never
// fails session creation.
func runSetupHook(worktree, repoPath string) {
	for _, candidate := range []string{
		filepath.Join(worktree, ".claustre", "setup"),
		filepath.Join(repoPath, ".claustre", "setup"),
	} {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if err := runSetupScript(candidate, worktree); err != nil {
			fmt.Fprintf(os.Stderr, "sessionmgr: setup hook %s: %v\n", candidate, err)
		}
		return
	}
}

func runSetupScript(path, worktree string) error {
	cmd := exec.Command(path) //nolint:gosec // G204: path is a fixed well-known location, not user input
	cmd.Dir = worktree
	cmd.Env = os.Environ()
	return cmd.Run()
}
