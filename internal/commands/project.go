package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claustre/claustre/internal/models"
	"github.com/claustre/claustre/internal/output"
	"github.com/claustre/claustre/internal/sessionmgr"
	"github.com/claustre/claustre/internal/store"
)

// NewProjectCmd creates the project administrative command group (spec §6
// "administrative project/task commands").
func NewProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	cmd.AddCommand(newProjectCreateCmd())
	cmd.AddCommand(newProjectGetCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectDeleteCmd())

	return cmd
}

func newProjectCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new project",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			repoPath, _ := cmd.Flags().GetString("repo-path")

			if name == "" {
				return cmdErr(errors.New("--name is required"))
			}
			if repoPath == "" {
				return cmdErr(errors.New("--repo-path is required"))
			}

			var project *models.Project
			if err := withDB(func(db *DB) error {
				p, err := store.CreateProject(db, name, repoPath)
				if err != nil {
					return err
				}
				project = p
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(project)
		},
	}

	cmd.Flags().String("name", "", "Project name (required)")
	cmd.Flags().String("repo-path", "", "Path to the git repository (required)")
	return cmd
}

func newProjectGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get project details",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id != "" && len(args) == 1 {
				return cmdErr(errors.New("provide either --id or a positional project id, not both"))
			}
			if id == "" && len(args) == 1 {
				id = args[0]
			}
			if id == "" {
				return cmdErr(errors.New("--id is required"))
			}

			var project *models.Project
			if err := withDB(func(db *DB) error {
				p, err := store.GetProject(db, id)
				if err != nil {
					return err
				}
				project = p
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(project)
		},
	}

	cmd.Flags().String("id", "", "Project ID (required)")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			var projects []*models.Project
			if err := withDB(func(db *DB) error {
				p, err := store.ListProjects(db)
				if err != nil {
					return err
				}
				projects = p
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count    int                `json:"count"`
				Projects []*models.Project `json:"projects"`
			}
			return output.PrintSuccess(resp{Count: len(projects), Projects: projects})
		},
	}

	return cmd
}

// newProjectDeleteCmd first tears down every active session for the
// project, then deletes the project row; tasks and sessions cascade via the
// schema's ON DELETE CASCADE foreign keys (spec §3, §8 scenario 6: "first
// teardown iterates active sessions ... then one transaction removes
// tasks/sessions/project").
func newProjectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				return cmdErr(errors.New("--id is required"))
			}

			if err := withDB(func(db *DB) error {
				sessions, err := store.ListActiveSessionsForProject(db, id)
				if err != nil {
					return err
				}
				for _, s := range sessions {
					if err := sessionmgr.TeardownSession(cmd.Context(), db, s.ID); err != nil {
						return fmt.Errorf("teardown session %s: %w", s.ID, err)
					}
				}
				return store.DeleteProject(db, id)
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

	cmd.Flags().String("id", "", "Project ID (required)")
	return cmd
}
