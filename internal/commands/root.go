package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/claustre/claustre/internal/app"
	"github.com/claustre/claustre/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "claustre",
		Short:         "Orchestrate concurrent coding-agent sessions across git worktrees",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}

			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				app.SetDBPathOverride(dbPath)
			}
			if baseDir, err := cmd.Flags().GetString("base-dir"); err == nil && baseDir != "" {
				app.SetBaseDirOverride(baseDir)
			}

			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override database path")
	root.PersistentFlags().String("base-dir", "", "Override base directory (sockets/pids/worktrees/tmp)")
	root.Flags().BoolP("version", "v", false, "version for claustre")

	root.AddCommand(NewProjectCmd())
	root.AddCommand(NewTaskCmd())
	root.AddCommand(NewSessionUpdateCmd())
	root.AddCommand(NewFeedNextCmd())
	root.AddCommand(NewSessionHostCmd())
	root.AddCommand(NewDashboardBootCmd())

	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Default().Error("command failed", "error", err.Error())
		}
	}
	return err
}
