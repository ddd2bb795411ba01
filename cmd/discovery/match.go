package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"govwatch/discovery-service/internal/match"
	"govwatch/discovery-service/internal/model"
)

var (
	matchProfile string
	matchDays    int
	matchNew     bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score cached opportunities against a company profile",
	Long:  "Loads a YAML company profile and scores every cached opportunity posted (or, with --new, first seen) within the trailing --days, printing the tiered result as JSON.",
	RunE:  runMatch,
}

func init() {
	matchCmd.Flags().StringVarP(&matchProfile, "profile", "p", "", "Path to a YAML company profile (required)")
	matchCmd.Flags().IntVar(&matchDays, "days", 30, "Trailing days of opportunities to score")
	matchCmd.Flags().BoolVar(&matchNew, "new", false, "Select by first-seen time instead of posted date")
	if err := matchCmd.MarkFlagRequired("profile"); err != nil {
		panic(fmt.Sprintf("failed to mark profile flag as required: %v", err))
	}
	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, _ []string) error {
	profile, err := match.LoadProfile(matchProfile)
	if err != nil {
		return err
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

	since := time.Now().UTC().AddDate(0, 0, -matchDays)
	var cached []model.CachedOpportunity
	if matchNew {
		cached, err = st.cache.FirstSeenSince(cmd.Context(), since)
	} else {
		cached, err = st.cache.PostedSince(cmd.Context(), since)
	}
	if err != nil {
		return err
	}

	opps := make([]model.Opportunity, len(cached))
	for i, c := range cached {
		opps[i] = c.Opportunity
	}
	return writeJSON(cmd, match.Match(opps, profile))
}
