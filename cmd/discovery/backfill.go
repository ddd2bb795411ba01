package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var backfillMonths int

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Walk 30-day windows backward and fill the cache",
	Long:  "Walks --months consecutive 30-day windows backward from today, newest first. A failed window is reported and the walk continues. Interrupting stops between windows.",
	RunE:  runBackfill,
}

func init() {
	backfillCmd.Flags().IntVar(&backfillMonths, "months", 0, "Number of 30-day windows (default BACKFILL_MONTHS)")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	months := backfillMonths
	if months == 0 {
		months = cfg.BackfillMonths
	}
	if months < 1 {
		return fmt.Errorf("--months must be at least 1, got %d", months)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	report, ok := newOrchestrator(cfg, st, "").Backfill(ctx, months)
	if !ok {
		return errors.New("a backfill is already running")
	}
	if err := writeJSON(cmd, report); err != nil {
		return err
	}
	if report.Succeeded == 0 && report.Failed > 0 {
		return fmt.Errorf("all %d backfill window(s) failed", report.Failed)
	}
	return nil
}
