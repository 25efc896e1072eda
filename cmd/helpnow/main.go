package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "helpnow",
	Short: "Caregiver companion for challenging dementia behaviors",
	Long: `helpnow runs a local service that serves short guidance videos for
challenging dementia behaviors, remembers favorites and recently viewed
situations, and verifies membership against Kartra.

Start the server with "helpnow start", then sign in with
"helpnow login <email>" and browse with "helpnow catalog list".`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the helpnow version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("helpnow version %s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		versionCmd,
		startCmd,
		stopCmd,
		statusCmd,
		loginCmd,
		logoutCmd,
		sessionCmd,
		catalogCmd,
		searchCmd,
		viewCmd,
		favoritesCmd,
		recentCmd,
		dataCmd,
		configCmd,
		testLeadCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
