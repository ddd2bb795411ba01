package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"govwatch/discovery-service/internal/cache"
)

var (
	linkNotice  string
	linkTracked string
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Point a cached opportunity at a manually tracked record",
	RunE:  runLink,
}

func init() {
	linkCmd.Flags().StringVar(&linkNotice, "notice", "", "Notice ID of the cached opportunity (required)")
	linkCmd.Flags().StringVar(&linkTracked, "tracked", "", "ID of the tracked record (required)")
	for _, f := range []string{"notice", "tracked"} {
		if err := linkCmd.MarkFlagRequired(f); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", f, err))
		}
	}
	rootCmd.AddCommand(linkCmd)
}

func runLink(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	st, err := openStores(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer st.close()

	if err := st.cache.LinkTracked(cmd.Context(), linkNotice, linkTracked); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return fmt.Errorf("notice %s is not cached", linkNotice)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "linked %s → %s\n", linkNotice, linkTracked)
	return nil
}
