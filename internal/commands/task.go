package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/claustre/claustre/internal/models"
	"github.com/claustre/claustre/internal/output"
	"github.com/claustre/claustre/internal/sessionmgr"
	"github.com/claustre/claustre/internal/store"
)

// NewTaskCmd creates the task administrative command group.
func NewTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Create, list, assign, and delete tasks. Modes: supervised|autonomous.",
	}

	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskGetCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskAssignCmd())
	cmd.AddCommand(newTaskDeleteCmd())

	return cmd
}

func newTaskCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, _ := cmd.Flags().GetString("project-id")
			title, _ := cmd.Flags().GetString("title")
			desc, _ := cmd.Flags().GetString("desc")
			mode, _ := cmd.Flags().GetString("mode")

			if projectID == "" {
				return cmdErr(errors.New("--project-id is required"))
			}
			if title == "" {
				return cmdErr(errors.New("--title is required"))
			}

			taskMode := models.TaskModeSupervised
			switch mode {
			case "", string(models.TaskModeSupervised):
				taskMode = models.TaskModeSupervised
			case string(models.TaskModeAutonomous):
				taskMode = models.TaskModeAutonomous
			default:
				return cmdErr(errors.New("--mode must be supervised or autonomous"))
			}

			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.CreateTask(db, projectID, title, desc, taskMode)
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(task)
		},
	}

	cmd.Flags().String("project-id", "", "Project ID (required)")
	cmd.Flags().String("title", "", "Task title (required)")
	cmd.Flags().String("desc", "", "Task description, fed to the agent as its prompt")
	cmd.Flags().String("mode", "supervised", "supervised|autonomous")
	return cmd
}

func newTaskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get task details",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" && len(args) == 1 {
				id = args[0]
			}
			if id == "" {
				return cmdErr(errors.New("--id is required"))
			}

			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.GetTask(db, id)
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(task)
		},
	}

	cmd.Flags().String("id", "", "Task ID (required)")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, _ := cmd.Flags().GetString("project-id")
			if projectID == "" {
				return cmdErr(errors.New("--project-id is required"))
			}

			var tasks []*models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.ListTasks(db, projectID)
				if err != nil {
					return err
				}
				tasks = t
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count int            `json:"count"`
				Tasks []*models.Task `json:"tasks"`
			}
			return output.PrintSuccess(resp{Count: len(tasks), Tasks: tasks})
		},
	}

	cmd.Flags().String("project-id", "", "Project ID (required)")
	return cmd
}

// newTaskAssignCmd routes a task to a session per its needs_new_session flag
// (spec glossary "Default session": tasks with needs_new_session=false are
// queued into the project's shared default-branch session; true gets its
// own dedicated-branch session, spec §8 scenario 1's canonical
// create_session(P, "fix-bug", T)).
func newTaskAssignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a task to a session, creating a dedicated branch if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, _ := cmd.Flags().GetString("project-id")
			taskID, _ := cmd.Flags().GetString("task-id")
			branch, _ := cmd.Flags().GetString("branch")
			if projectID == "" {
				return cmdErr(errors.New("--project-id is required"))
			}
			if taskID == "" {
				return cmdErr(errors.New("--task-id is required"))
			}

			var started bool
			if err := withDB(func(db *DB) error {
				task, err := store.GetTask(db, taskID)
				if err != nil {
					return err
				}

				if !task.NeedsNewSession {
					s, err := sessionmgr.AssignToDefaultSession(cmd.Context(), db, projectID, taskID)
					started = s
					return err
				}

				if branch == "" {
					return errors.New("--branch is required to assign a task that needs a new session")
				}
				session, err := sessionmgr.CreateSession(cmd.Context(), db, sessionmgr.CreateSessionParams{
					ProjectID: projectID,
					Branch:    branch,
					TaskID:    taskID,
				})
				if err != nil {
					return err
				}
				started = session.ClaudeStatus == models.ClaudeStatusWorking
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Started bool `json:"started"`
			}
			return output.PrintSuccess(resp{Started: started})
		},
	}

	cmd.Flags().String("project-id", "", "Project ID (required)")
	cmd.Flags().String("task-id", "", "Task ID (required)")
	cmd.Flags().String("branch", "", "Branch name for a dedicated session (required when the task needs a new session)")
	return cmd
}

func newTaskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				return cmdErr(errors.New("--id is required"))
			}

			if err := withDB(func(db *DB) error {
				return store.DeleteTask(db, id)
			}); err != nil {
				return err
			}

			type resp struct {
				Deleted bool   `json:"deleted"`
				ID      string `json:"id"`
			}
			return output.PrintSuccess(resp{Deleted: true, ID: id})
		},
	}

	cmd.Flags().String("id", "", "Task ID (required)")
	return cmd
}
