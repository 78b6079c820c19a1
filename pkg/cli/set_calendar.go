package cli

import (
	"fmt"

	"github.com/harrisonrobin/sheetsync/pkg/config"
	"github.com/spf13/cobra"
)

var setCalendarCmd = &cobra.Command{
	Use:   "set-calendar NAME",
	Short: "Set the default calendar",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetCalendar,
}

func init() {
	rootCmd.AddCommand(setCalendarCmd)
}

func runSetCalendar(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.ReadFile(path)
	if err != nil {
		return err
	}
	cfg.Calendar = args[0]
	if err := config.SaveFile(path, cfg); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Default calendar set to: %s\n", args[0])
	return nil
}
