package cli

import (
	"fmt"

	"github.com/harrisonrobin/sheetsync/pkg/auth"
	"github.com/harrisonrobin/sheetsync/pkg/index"
	"github.com/harrisonrobin/sheetsync/pkg/retry"
	"github.com/harrisonrobin/sheetsync/pkg/runlog"
	"github.com/harrisonrobin/sheetsync/pkg/sheets"
	"github.com/harrisonrobin/sheetsync/pkg/syncer"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync from the sheet to the calendar",
	Long: `Reads the task table, writes identities for rows that lack one, then
creates, updates and deletes calendar events until the calendar mirrors the
sheet. The run log is appended to the log sheet when the run ends.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var (
	syncCalendar    string
	syncSpreadsheet string
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncCalendar, "calendar", "", "Calendar name to sync with (overrides config)")
	syncCmd.Flags().StringVar(&syncSpreadsheet, "spreadsheet", "", "Spreadsheet ID to read tasks from (overrides config)")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if syncCalendar != "" {
		cfg.Calendar = syncCalendar
	}
	if syncSpreadsheet != "" {
		cfg.SpreadsheetID = syncSpreadsheet
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	log, err := runlog.New(runlog.Options{Level: cfg.LogLevel, File: cfg.LogFile, Out: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}

	state, err := index.Open(cfg.StateFile)
	if err != nil {
		log.Warnf("ignoring unreadable local state %s: %v", cfg.StateFile, err)
		state = nil
	}

	s := &syncer.Syncer{
		Connector: &syncer.GoogleConnector{
			Auth:          &auth.Provider{CredentialsFile: cfg.CredentialsFile, TokenFile: cfg.TokenFile},
			SpreadsheetID: cfg.SpreadsheetID,
			Layout:        sheets.Layout{Sheet: cfg.TaskSheet, FirstRow: cfg.FirstRow},
			LogSheet:      cfg.LogSheet,
			Calendar:      cfg.Calendar,
		},
		Log:           log,
		Retry:         retry.New(cfg.MaxAttempts, cfg.BaseDelay, log),
		Location:      loc,
		EventDuration: cfg.EventDuration,
		LastSyncCell:  cfg.LastSyncCell,
		State:         state,
	}

	report, err := s.Run(cmd.Context())
	if err != nil {
		return err
	}
	res := report.Result
	fmt.Fprintf(cmd.OutOrStdout(), "Synced %d tasks: %d created, %d updated, %d deleted, %d unchanged\n",
		report.Tasks, res.Created, res.Updated, res.Deleted, res.Unchanged)
	return nil
}
