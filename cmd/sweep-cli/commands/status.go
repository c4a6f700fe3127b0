package commands

import (
	"fmt"
	"os"
	"strings"

	"procheck-sweep/lib/serviceutil"
	"procheck-sweep/services/sweep"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the progress recorded in the sweep checkpoint.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		checkpoint := sweep.NewCheckpointStore(cfg.CheckpointFile)
		loaded, err := checkpoint.Load()
		if err != nil {
			serviceutil.Fatal("failed to load checkpoint", err)
		}
		if !loaded {
			fmt.Printf("no checkpoint at %s\n", cfg.CheckpointFile)
			return
		}

		state := checkpoint.State()

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.SetOutputMirror(os.Stdout)
		t.AppendRows([]table.Row{
			{"run id", state.RunID},
			{"phase", state.Phase},
			{"started at", state.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"last updated", state.LastUpdated.Format("2006-01-02 15:04:05 MST")},
			{"prefixes completed", len(state.CompletedPrefixes)},
			{"prefixes failed", strings.Join(state.FailedPrefixes, ", ")},
			{"agents found", state.TotalAgentsFound},
			{"deep records done", len(state.DeepCompletedIDs)},
		})
		t.Render()
	},
}
