package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harrisonrobin/sheetsync/pkg/config"
	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sheetsync",
	Short: "Mirror a spreadsheet task list onto a Google Calendar",
	Long: `sheetsync reads the task table of a Google Sheet, gives every row a
stable identity, and keeps one calendar event per task. Events for rows that
disappear are deleted; events it did not create are left alone.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.config/sheetsync/config.yaml)")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return syncerr.ExitCode(err)
	}
	return 0
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return "", syncerr.New(syncerr.KindConfig, "locate config", err)
	}
	return path, nil
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Load()
	}
	return config.LoadFile(configPath)
}
