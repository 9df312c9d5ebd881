package feeder

import (
	"context"
	"database/sql"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claustre/claustre/internal/app"
	"github.com/claustre/claustre/internal/models"
	"github.com/claustre/claustre/internal/protocol"
	"github.com/claustre/claustre/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := store.InitDBWithPath(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPrepareNextTaskSkipsWhenRateLimited(t *testing.T) {
	db := setupTestDB(t)
	project, err := store.CreateProject(db, "demo", "/repo")
	require.NoError(t, err)
	session, err := store.CreateSession(db, project.ID, "fix", "/worktree", "fix")
	require.NoError(t, err)
	task, err := store.CreateTask(db, project.ID, "t1", "do the thing", models.TaskModeSupervised)
	require.NoError(t, err)
	require.NoError(t, store.AssignTaskSession(db, task.ID, &session.ID, false))

	require.NoError(t, store.SetRateLimited(db, models.LimitType5h, sql.NullTime{}))

	prepared, err := PrepareNextTask(db, session.ID)
	require.NoError(t, err)
	assert.Nil(t, prepared)
}

func TestPrepareNextTaskMarksInProgress(t *testing.T) {
	db := setupTestDB(t)
	project, err := store.CreateProject(db, "demo", "/repo")
	require.NoError(t, err)
	session, err := store.CreateSession(db, project.ID, "fix", "/worktree", "fix")
	require.NoError(t, err)
	task, err := store.CreateTask(db, project.ID, "t1", "do the thing", models.TaskModeAutonomous)
	require.NoError(t, err)
	require.NoError(t, store.AssignTaskSession(db, task.ID, &session.ID, false))

	prepared, err := PrepareNextTask(db, session.ID)
	require.NoError(t, err)
	require.NotNil(t, prepared)
	assert.Contains(t, prepared.Prompt, "do the thing")
	assert.Contains(t, prepared.Prompt, models.AutonomousSuffix)

	got, err := store.GetTask(db, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, got.Status)
}

func TestRevertPreparedResetsState(t *testing.T) {
	db := setupTestDB(t)
	project, err := store.CreateProject(db, "demo", "/repo")
	require.NoError(t, err)
	session, err := store.CreateSession(db, project.ID, "fix", "/worktree", "fix")
	require.NoError(t, err)
	task, err := store.CreateTask(db, project.ID, "t1", "do the thing", models.TaskModeSupervised)
	require.NoError(t, err)
	require.NoError(t, store.AssignTaskSession(db, task.ID, &session.ID, false))
	_, err = store.UpdateTaskStatus(db, task.ID, models.TaskStatusInProgress)
	require.NoError(t, err)

	prepared := &Prepared{TaskID: task.ID, SessionID: session.ID}
	require.NoError(t, RevertPrepared(db, prepared, assert.AnError))

	got, err := store.GetTask(db, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, got.Status)

	gotSession, err := store.GetSession(db, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaudeStatusError, gotSession.ClaudeStatus)
}

func TestLaunchPreparedWritesInputFrame(t *testing.T) {
	dir := t.TempDir()
	app.SetBaseDirOverride(dir)
	defer app.SetBaseDirOverride("")

	sessionID := "sess-1"
	socketPath, err := app.SocketPath(sessionID)
	require.NoError(t, err)

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer listener.Close()

	received := make(chan protocol.ClientMessage, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		typ, payload, err := protocol.NewReader(conn).ReadFrame()
		if err != nil {
			return
		}
		msg, err := protocol.DecodeClientMessage(typ, payload)
		if err != nil {
			return
		}
		received <- msg
	}()

	err = LaunchPrepared(context.Background(), &Prepared{SessionID: sessionID, Prompt: "do it"})
	require.NoError(t, err)

	msg := <-received
	assert.Equal(t, protocol.TypeInput, msg.Type)
	assert.Equal(t, "do it\n", string(msg.Payload))
}
