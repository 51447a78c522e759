package cli

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vtask",
		Short: "Voice-driven reminder supervisor",
		Long: `vtask watches the live transcript of a phone call and turns what the
caller says into reminders: it creates, modifies, cancels and lists scheduled
callbacks, and never writes anything before the caller has explicitly confirmed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newTasksCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newAgentPromptCmd())

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to vtask.yaml config file (default: search up directory tree)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (default: from config)")

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return newRootCmd().Execute()
}
