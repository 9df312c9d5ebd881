package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigDir_UsesHomeDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := ConfigDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "claustre"), dir)
}

func TestEnsureConfigDir_CreatesDefaultConfigOnlyWhenMissing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	err := EnsureConfigDir()
	require.NoError(t, err)

	dir, err := ConfigDir()
	require.NoError(t, err)

	configFile := filepath.Join(dir, "config.yaml")
	b, err := os.ReadFile(configFile)
	require.NoError(t, err)
	require.Equal(t, defaultConfig, string(b))

	custom := []byte("db_path: /tmp/custom.db\n")
	require.NoError(t, os.WriteFile(configFile, custom, 0o600))

	err = EnsureConfigDir()
	require.NoError(t, err)

	b, err = os.ReadFile(configFile)
	require.NoError(t, err)
	require.Equal(t, string(custom), string(b))
}

func TestBaseDir_DefaultsToConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	resetOverridesForTest()

	dir, err := BaseDir()
	require.NoError(t, err)

	cfg, err := ConfigDir()
	require.NoError(t, err)
	require.Equal(t, cfg, dir)
}

func TestBaseDir_EnvOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	resetOverridesForTest()

	want := t.TempDir()
	t.Setenv("CLAUSTRE_BASE_DIR", want)

	dir, err := BaseDir()
	require.NoError(t, err)
	require.Equal(t, want, dir)
}

func TestSocketPIDProgressPaths(t *testing.T) {
	base := t.TempDir()
	SetBaseDirOverride(base)
	defer SetBaseDirOverride("")

	sock, err := SocketPath("sess-1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "sockets", "sess-1.sock"), sock)

	pid, err := PIDPath("sess-1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "pids", "sess-1.pid"), pid)

	progress, err := ProgressPath("sess-1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "tmp", "sess-1", "progress.json"), progress)

	rpcSock, err := RPCSocketPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "sockets", "rpc.sock"), rpcSock)
}
