package sessionmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/claustre/claustre/internal/models"
)

func TestDecideLaunchSupervised(t *testing.T) {
	task := &models.Task{Mode: models.TaskModeSupervised, Description: "fix the bug"}
	plan := decideLaunch(task, nil)
	assert.Equal(t, "fix the bug", plan.Prompt)
	assert.Nil(t, plan.ActiveSubtask)
}

func TestDecideLaunchAutonomousNoSubtasks(t *testing.T) {
	task := &models.Task{Mode: models.TaskModeAutonomous, Description: "fix the bug"}
	plan := decideLaunch(task, nil)
	assert.Contains(t, plan.Prompt, "fix the bug")
	assert.Contains(t, plan.Prompt, autonomousSuffix)
	assert.Nil(t, plan.ActiveSubtask)
}

func TestDecideLaunchAutonomousWithSubtasks(t *testing.T) {
	task := &models.Task{Mode: models.TaskModeAutonomous, Description: "fix the bug"}
	subtasks := []*models.Subtask{
		{ID: "s1", Status: models.SubtaskStatusDone, Description: "step a"},
		{ID: "s2", Status: models.SubtaskStatusPending, Description: "step b"},
	}
	plan := decideLaunch(task, subtasks)
	assert.Equal(t, "s2", plan.ActiveSubtask.ID)
	assert.Contains(t, plan.Prompt, "step b")
}

func TestParseShortstat(t *testing.T) {
	files, added, removed := parseShortstat(" 3 files changed, 42 insertions(+), 7 deletions(-)")
	assert.Equal(t, 3, files)
	assert.Equal(t, 42, added)
	assert.Equal(t, 7, removed)
}

func TestParseShortstatNoDeletions(t *testing.T) {
	files, added, removed := parseShortstat(" 1 file changed, 5 insertions(+)")
	assert.Equal(t, 1, files)
	assert.Equal(t, 5, added)
	assert.Equal(t, 0, removed)
}
