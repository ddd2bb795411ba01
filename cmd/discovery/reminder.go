package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"govwatch/discovery-service/internal/tracking"
)

var cancelReminderID string

var cancelReminderCmd = &cobra.Command{
	Use:   "cancel-reminder",
	Short: "Cancel a pending reminder so the sweep never sends it",
	RunE:  runCancelReminder,
}

func init() {
	cancelReminderCmd.Flags().StringVar(&cancelReminderID, "id", "", "Reminder ID (required)")
	if err := cancelReminderCmd.MarkFlagRequired("id"); err != nil {
		panic(fmt.Sprintf("failed to mark id flag as required: %v", err))
	}
	rootCmd.AddCommand(cancelReminderCmd)
}

func runCancelReminder(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.SQLitePath != "" {
		return errors.New("reminders live in PostgreSQL; unset SQLITE_PATH and --sqlite")
	}
	st, err := openStores(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer st.close()

	err = tracking.NewService(st.pool).CancelReminder(cmd.Context(), cancelReminderID)
	var vErr *tracking.ValidationError
	switch {
	case errors.Is(err, tracking.ErrNotFound):
		return fmt.Errorf("reminder %s not found", cancelReminderID)
	case errors.Is(err, tracking.ErrConflict), errors.As(err, &vErr):
		return fmt.Errorf("reminder %s is no longer pending: %w", cancelReminderID, err)
	case err != nil:
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cancelled reminder %s\n", cancelReminderID)
	return nil
}
