package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the gmailnotifier application
var rootCmd = &cobra.Command{
	Use:   "gmailnotifier",
	Short: "Sends notifications for new Gmail messages matching a saved query",
	Long: `gmailnotifier is a small web service that checks a Gmail mailbox for
new messages matching a per-user search query, on a recurring schedule
driven by Cloud Scheduler and Pub/Sub.

Users authorize mailbox access via /oauth2init, register the recurring
check with /setCron and manage their search query with /setEditQuery.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gmailnotifier version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
