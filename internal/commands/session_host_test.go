package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionHostCmd_RequiresSessionID(t *testing.T) {
	cmd := NewSessionHostCmd()
	err := cmd.RunE(cmd, []string{"echo", "hi"})
	require.Error(t, err)
	require.EqualError(t, err, "--session-id is required")
}

func TestSessionHostCmd_RequiresWorktreePath(t *testing.T) {
	cmd := NewSessionHostCmd()
	require.NoError(t, cmd.Flags().Set("session-id", "s1"))
	err := cmd.RunE(cmd, []string{"echo", "hi"})
	require.Error(t, err)
	require.EqualError(t, err, "--worktree-path is required")
}

func TestSessionHostCmd_RequiresTrailingCommand(t *testing.T) {
	cmd := NewSessionHostCmd()
	require.NoError(t, cmd.Flags().Set("session-id", "s1"))
	require.NoError(t, cmd.Flags().Set("worktree-path", "/tmp/wt"))
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.EqualError(t, err, "a command to run must follow --")
}

func TestSessionHostCmd_IsHidden(t *testing.T) {
	cmd := NewSessionHostCmd()
	require.True(t, cmd.Hidden)
}
