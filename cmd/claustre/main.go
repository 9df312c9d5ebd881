// Claustre orchestrates multiple concurrent coding-agent sessions across
// git worktrees, each running as a detached session-host process behind a
// framed Unix-socket protocol, coordinated through a SQLite-backed store.
package main

import (
	"os"
	"runtime/debug"

	"github.com/claustre/claustre/internal/commands"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
