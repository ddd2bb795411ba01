package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"govwatch/discovery-service/internal/match"
	"govwatch/discovery-service/internal/model"
	"govwatch/discovery-service/internal/syncer"
)

// maxListed caps how many notice ids a notification carries in its metadata.
const maxListed = 10

// maxCatchUp bounds how many lookback windows a paused saved search replays.
const maxCatchUp = 7

// JobRun is the outcome of the most recent run of one job.
type JobRun struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Error      string    `json:"error,omitempty"`
	Detail     any       `json:"detail,omitempty"`
}

// Status is a point-in-time snapshot for the ops API.
type Status struct {
	Started         bool                   `json:"started"`
	StartupComplete bool                   `json:"startupComplete"`
	BackfillRunning bool                   `json:"backfillRunning"`
	LastSync        *syncer.SyncResult     `json:"lastSync,omitempty"`
	LastBackfill    *syncer.BackfillReport `json:"lastBackfill,omitempty"`
	Jobs            map[string]JobRun      `json:"jobs"`
}

// Status returns a copy of the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.status
	out.Jobs = make(map[string]JobRun, len(s.status.Jobs))
	for k, v := range s.status.Jobs {
		out.Jobs[k] = v
	}
	out.BackfillRunning = s.deps.Syncer.State().Running()
	return out
}

// StartupComplete reports whether the startup sync has finished.
func (s *Scheduler) StartupComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.StartupComplete
}

// evaluateSavedSearch notifies the owner of ss when any opportunity passes its
// filter. It reports whether a notification was attempted.
func evaluateSavedSearch(ctx context.Context, n Notifier, ss model.SavedSearch, opps []model.Opportunity) bool {
	hits := match.FilterAll(opps, ss.Filter)
	if len(hits) == 0 {
		return false
	}
	n.Send(ctx, model.Notification{
		RecipientID: ss.UserID,
		Type:        model.NotificationSavedSearch,
		Title:       fmt.Sprintf("%d new opportunities for %q", len(hits), ss.Name),
		Message:     hits[0].Title,
		Metadata: map[string]any{
			"savedSearchId": ss.ID,
			"count":         len(hits),
			"noticeIds":     noticeIDs(hits),
		},
	})
	return true
}

// scoreProfile runs one scoring pass for p, records the counts and notifies
// the organisation when anything lands in the top tier.
func scoreProfile(ctx context.Context, h MatchHistory, n Notifier, p model.CompanyProfile, opps []model.Opportunity) match.Tiers {
	tiers := match.Match(opps, p)

	err := h.RecordMatch(ctx, model.MatchHistoryRecord{
		ProfileID:     p.ID,
		Matched:       len(tiers.Matched),
		NearMatch:     len(tiers.NearMatch),
		Stretch:       len(tiers.Stretch),
		TotalAnalyzed: tiers.TotalAnalyzed,
	})
	if err != nil {
		log.Printf("[scheduler] RecordMatch(%s) error: %v", p.ID, err)
	}

	log.Printf("[scheduler] Profile %s — matched=%d near=%d stretch=%d of %d",
		p.ID, len(tiers.Matched), len(tiers.NearMatch), len(tiers.Stretch), tiers.TotalAnalyzed)

	if len(tiers.Matched) == 0 || p.OrganizationID == "" {
		return tiers
	}
	ids := make([]string, 0, maxListed)
	for i, r := range tiers.Matched {
		if i == maxListed {
			break
		}
		ids = append(ids, r.NoticeID)
	}
	n.Send(ctx, model.Notification{
		RecipientID: p.OrganizationID,
		Type:        model.NotificationNewMatches,
		Title:       fmt.Sprintf("%d new matching opportunities", len(tiers.Matched)),
		Message:     tiers.Matched[0].Title,
		Metadata: map[string]any{
			"profileId": p.ID,
			"matched":   len(tiers.Matched),
			"nearMatch": len(tiers.NearMatch),
			"noticeIds": ids,
		},
	})
	return tiers
}

func noticeIDs(opps []model.Opportunity) []string {
	n := len(opps)
	if n > maxListed {
		n = maxListed
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = opps[i].NoticeID
	}
	return ids
}
