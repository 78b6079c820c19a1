package cli

import (
	"fmt"

	"github.com/harrisonrobin/sheetsync/pkg/auth"
	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to Google Sheets and Calendar",
	Long: `Discards any cached token and runs the browser consent flow. The new
token is saved so later sync runs need no interaction. Service account keys
need no consent; the command then only checks that the key loads.`,
	Args: cobra.NoArgs,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p := &auth.Provider{
		CredentialsFile: cfg.CredentialsFile,
		TokenFile:       cfg.TokenFile,
		Interactive:     true,
	}
	if err := p.Reset(); err != nil {
		return err
	}
	if _, err := p.Client(cmd.Context()); err != nil {
		return syncerr.New(syncerr.KindAuthorization, "authorize", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n", cfg.TokenFile)
	return nil
}
