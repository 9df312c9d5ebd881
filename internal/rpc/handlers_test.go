package rpc

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claustre/claustre/internal/models"
	"github.com/claustre/claustre/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	db, err := store.InitDBWithPath(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewServer(db)
}

func TestHandleStatusDoneMovesSupervisedTaskToInReview(t *testing.T) {
	s := newTestServer(t)
	project, err := store.CreateProject(s.db, "demo", "/repo")
	require.NoError(t, err)
	session, err := store.CreateSession(s.db, project.ID, "fix", "/worktree", "fix")
	require.NoError(t, err)
	task, err := store.CreateTask(s.db, project.ID, "t1", "do it", models.TaskModeSupervised)
	require.NoError(t, err)
	require.NoError(t, store.AssignTaskSession(s.db, task.ID, &session.ID, false))
	_, err = store.UpdateTaskStatus(s.db, task.ID, models.TaskStatusInProgress)
	require.NoError(t, err)

	params, err := json.Marshal(statusParams{SessionID: session.ID, State: "done", Message: "all set"})
	require.NoError(t, err)

	resp := s.dispatch(Request{Tool: "claustre_status", Params: params})
	assert.True(t, resp.OK, resp.Error)

	got, err := store.GetTask(s.db, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInReview, got.Status)
}

func TestHandleTaskDoneNoSubtasksSetsInReviewAndPRURL(t *testing.T) {
	s := newTestServer(t)
	project, err := store.CreateProject(s.db, "demo", "/repo")
	require.NoError(t, err)
	session, err := store.CreateSession(s.db, project.ID, "fix", "/worktree", "fix")
	require.NoError(t, err)
	task, err := store.CreateTask(s.db, project.ID, "t1", "do it", models.TaskModeAutonomous)
	require.NoError(t, err)
	require.NoError(t, store.AssignTaskSession(s.db, task.ID, &session.ID, false))
	_, err = store.UpdateTaskStatus(s.db, task.ID, models.TaskStatusInProgress)
	require.NoError(t, err)

	params, err := json.Marshal(taskDoneParams{SessionID: session.ID, Summary: "done", PRURL: "https://x/1"})
	require.NoError(t, err)

	resp := s.dispatch(Request{Tool: "claustre_task_done", Params: params})
	assert.True(t, resp.OK, resp.Error)

	got, err := store.GetTask(s.db, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInReview, got.Status)
	require.NotNil(t, got.PRURL)
	assert.Equal(t, "https://x/1", *got.PRURL)
}

func TestHandleTaskDoneAdvancesToNextSubtask(t *testing.T) {
	s := newTestServer(t)
	project, err := store.CreateProject(s.db, "demo", "/repo")
	require.NoError(t, err)
	session, err := store.CreateSession(s.db, project.ID, "fix", "/worktree", "fix")
	require.NoError(t, err)
	task, err := store.CreateTask(s.db, project.ID, "t1", "do it", models.TaskModeAutonomous)
	require.NoError(t, err)
	require.NoError(t, store.AssignTaskSession(s.db, task.ID, &session.ID, false))
	_, err = store.UpdateTaskStatus(s.db, task.ID, models.TaskStatusInProgress)
	require.NoError(t, err)

	sub1, err := store.CreateSubtask(s.db, task.ID, "a", "step a")
	require.NoError(t, err)
	sub2, err := store.CreateSubtask(s.db, task.ID, "b", "step b")
	require.NoError(t, err)
	_, err = store.UpdateSubtaskStatus(s.db, sub1.ID, models.SubtaskStatusInProgress)
	require.NoError(t, err)

	params, err := json.Marshal(taskDoneParams{SessionID: session.ID, Summary: "step a done"})
	require.NoError(t, err)
	resp := s.dispatch(Request{Tool: "claustre_task_done", Params: params})
	require.True(t, resp.OK, resp.Error)

	gotSub1, err := store.GetSubtask(s.db, sub1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubtaskStatusDone, gotSub1.Status)

	gotSub2, err := store.GetSubtask(s.db, sub2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubtaskStatusInProgress, gotSub2.Status)

	gotTask, err := store.GetTask(s.db, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, gotTask.Status)
}

func TestHandleUsageWindowsDoesNotTouchRateLimitFlag(t *testing.T) {
	s := newTestServer(t)
	project, err := store.CreateProject(s.db, "demo", "/repo")
	require.NoError(t, err)
	session, err := store.CreateSession(s.db, project.ID, "fix", "/worktree", "fix")
	require.NoError(t, err)

	params, err := json.Marshal(usageWindowsParams{SessionID: session.ID, Usage5hPct: 42.5, Usage7dPct: 10})
	require.NoError(t, err)
	resp := s.dispatch(Request{Tool: "claustre_usage_windows", Params: params})
	require.True(t, resp.OK, resp.Error)

	state, err := store.GetRateLimitState(s.db)
	require.NoError(t, err)
	assert.False(t, state.IsRateLimited)
	assert.InDelta(t, 42.5, state.Usage5hPct, 0.001)
}

func TestDispatchUnknownTool(t *testing.T) {
	s := newTestServer(t)
	resp := s.dispatch(Request{Tool: "not_a_tool"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unknown tool")
}
