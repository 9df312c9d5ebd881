package sessionmgr

import (
	"github.com/claustre/claustre/internal/models"
)

const autonomousSuffix = models.AutonomousSuffix

// launchPlan is the decided prompt (and, for autonomous tasks with subtasks,
// the subtask it starts) for a session-host invocation (spec §4.4 step 7).
type launchPlan struct {
	Prompt        string
	ActiveSubtask *models.Subtask // non-nil only for autonomous-with-subtasks
}

// decideLaunch implements spec §4.4 step 7's three branches. subtasks is nil
// or empty for a task with no subtasks.
func decideLaunch(task *models.Task, subtasks []*models.Subtask) launchPlan {
	if task.Mode != models.TaskModeAutonomous {
		return launchPlan{Prompt: task.Description}
	}

	if len(subtasks) == 0 {
		return launchPlan{Prompt: task.Description + autonomousSuffix}
	}

	first := firstPending(subtasks)
	if first == nil {
		return launchPlan{Prompt: task.Description + autonomousSuffix}
	}
	return launchPlan{Prompt: first.Description + autonomousSuffix, ActiveSubtask: first}
}

func firstPending(subtasks []*models.Subtask) *models.Subtask {
	for _, s := range subtasks {
		if s.Status == models.SubtaskStatusPending {
			return s
		}
	}
	return nil
}

// agentCommand returns the argv used to launch the agent CLI inside a
// session-host, grounded on the teacher's internal/llm.Runner: a "claude -p
// <prompt>" invocation with text output, no interactive settings.
func agentCommand(prompt string) []string {
	return []string{"claude", "-p", prompt, "--output-format", "text"}
}
