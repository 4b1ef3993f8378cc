package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warptalk/internal/config"
	"github.com/BioHazard786/Warptalk/internal/ui"
	"github.com/BioHazard786/Warptalk/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warptalk",
	Short: "Two-party voice calls over WebRTC with live transcripts",
	Long: `Warptalk connects two people in a peer-to-peer WebRTC voice call and keeps a
live transcript of what each side says. The same binary runs the signaling
server that pairs callers into rooms.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadDotEnv()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
