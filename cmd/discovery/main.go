// Command discovery runs the govwatch opportunity discovery service and its
// operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var sqlitePath string

var rootCmd = &cobra.Command{
	Use:           "discovery",
	Short:         "Federal contract opportunity discovery",
	Long:          "Keeps a deduplicated cache of SAM.gov contract opportunities, scores them against company profiles and sends reminders and alerts.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "Use a local SQLite database at this path instead of PostgreSQL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
