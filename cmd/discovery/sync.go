package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	syncDays    int
	syncKeyword string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the trailing days of opportunities into the cache",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().IntVar(&syncDays, "days", 7, "Number of trailing days to fetch")
	syncCmd.Flags().StringVar(&syncKeyword, "keyword", "", "Optional title keyword filter")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	if syncDays < 1 {
		return fmt.Errorf("--days must be at least 1, got %d", syncDays)
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	st, err := openStores(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer st.close()

	res, err := newOrchestrator(cfg, st, syncKeyword).SyncRecent(cmd.Context(), syncDays)
	if err != nil {
		return err
	}
	return writeJSON(cmd, res)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
