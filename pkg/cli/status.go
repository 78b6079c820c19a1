package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/harrisonrobin/sheetsync/pkg/index"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the outcome of the last successful sync",
	Long:  `Reads the local state file. Nothing is fetched from Google.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	state, err := index.Open(cfg.StateFile)
	if err != nil {
		return fmt.Errorf("could not read local state %s: %w", cfg.StateFile, err)
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]interface{}{
			"last_sync": state.LastSync,
			"calendar":  state.Calendar,
			"tasks":     state.Len(),
			"created":   state.Created,
			"updated":   state.Updated,
			"deleted":   state.Deleted,
		})
	}

	if state.LastSync.IsZero() {
		fmt.Fprintln(out, "No successful sync recorded yet.")
		return nil
	}
	fmt.Fprintf(out, "Last sync: %s\n", state.LastSync.Local().Format(time.RFC1123))
	fmt.Fprintf(out, "Calendar:  %s\n", state.Calendar)
	fmt.Fprintf(out, "Tasks:     %d\n", state.Len())
	fmt.Fprintf(out, "Changes:   %d created, %d updated, %d deleted\n", state.Created, state.Updated, state.Deleted)
	return nil
}
