package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func buildRootForTest() *cobra.Command {
	root := &cobra.Command{Use: "claustre"}
	root.PersistentFlags().String("db-path", "", "")
	root.PersistentFlags().String("base-dir", "", "")
	root.AddCommand(NewProjectCmd())
	root.AddCommand(NewTaskCmd())
	root.AddCommand(NewSessionUpdateCmd())
	root.AddCommand(NewFeedNextCmd())
	root.AddCommand(NewSessionHostCmd())
	root.AddCommand(NewDashboardBootCmd())
	return root
}

func TestRoot_RegistersAllSubcommands(t *testing.T) {
	root := buildRootForTest()
	for _, name := range []string{"project", "task", "session-update", "feed-next", "session-host", "dashboard-boot"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, sub.Name())
	}
}
