// Package scheduler wires up the cron jobs that keep the opportunity cache
// fresh and drive reminders, saved-search alerts and match sweeps.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"govwatch/discovery-service/internal/model"
	"govwatch/discovery-service/internal/syncer"
)

// Job names, also used as keys in Status.Jobs.
const (
	JobSync        = "sync"
	JobReminders   = "reminders"
	JobSavedSearch = "saved-searches"
	JobMatch       = "match"
	JobStartup     = "startup"
	JobBackfill    = "backfill"
)

// Syncer is the part of the orchestrator the scheduler drives.
type Syncer interface {
	SyncRecent(ctx context.Context, days int) (syncer.SyncResult, error)
	StartBackfill(ctx context.Context, monthsBack int) (<-chan syncer.BackfillReport, bool)
	State() *syncer.BackfillState
}

// Cache is the read side of the opportunity cache.
type Cache interface {
	Count(ctx context.Context) (int, error)
	FirstSeenSince(ctx context.Context, since time.Time) ([]model.CachedOpportunity, error)
}

// Tracker reads and updates user-owned records.
type Tracker interface {
	DueReminders(ctx context.Context, now time.Time) ([]model.Reminder, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	ActiveSavedSearches(ctx context.Context) ([]model.SavedSearch, error)
	MarkSavedSearchRun(ctx context.Context, id string, at time.Time) error
	ActiveProfiles(ctx context.Context) ([]model.CompanyProfile, error)
}

// MatchHistory stores aggregate match counts.
type MatchHistory interface {
	RecordMatch(ctx context.Context, rec model.MatchHistoryRecord) error
}

// Notifier delivers notifications without ever failing the caller.
type Notifier interface {
	Send(ctx context.Context, n model.Notification) bool
}

// Config holds cron specs and thresholds.
type Config struct {
	SyncSpec          string
	ReminderSpec      string
	SavedSearchSpec   string
	SyncDays          int
	BackfillMonths    int
	BackfillThreshold int
	Lookback          time.Duration
}

// DefaultConfig returns the production schedule.
func DefaultConfig() Config {
	return Config{
		SyncSpec:          "@daily",
		ReminderSpec:      "@hourly",
		SavedSearchSpec:   "@daily",
		SyncDays:          7,
		BackfillMonths:    12,
		BackfillThreshold: 100,
		Lookback:          24 * time.Hour,
	}
}

// Deps groups the collaborators of a Scheduler.
type Deps struct {
	Syncer   Syncer
	Cache    Cache
	Tracker  Tracker
	Matches  MatchHistory
	Notifier Notifier
}

// Scheduler wraps robfig/cron and owns the background job lifecycle.
type Scheduler struct {
	cron *cron.Cron
	deps Deps
	cfg  Config
	now  func() time.Time

	// OnStartupComplete, if set, runs once the startup sync has finished,
	// whatever its outcome.
	OnStartupComplete func()

	wg sync.WaitGroup

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	status Status
}

// New creates a Scheduler.
func New(deps Deps, cfg Config) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cron.DefaultLogger),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		deps:   deps,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		ctx:    context.Background(),
		status: Status{Jobs: map[string]JobRun{}},
	}
}

// Start registers the jobs and starts the scheduler. It also launches the
// startup sequence in the background: an immediate sync, then a backfill
// when the cache is nearly empty.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ctx, s.cancel = ctx, cancel
	s.mu.Unlock()

	jobs := []struct {
		spec string
		name string
		fn   func(context.Context) error
	}{
		{s.cfg.SyncSpec, JobSync, s.dailySync},
		{s.cfg.ReminderSpec, JobReminders, s.sweepReminders},
		{s.cfg.SavedSearchSpec, JobSavedSearch, s.sweepSavedSearches},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, func() { s.run(ctx, j.name, j.fn) }); err != nil {
			return fmt.Errorf("cron.AddFunc(%s, %q): %w", j.name, j.spec, err)
		}
	}

	s.cron.Start()
	s.mu.Lock()
	s.status.Started = true
	s.mu.Unlock()
	log.Printf("[scheduler] Cron started — sync=%s reminders=%s saved-searches=%s",
		s.cfg.SyncSpec, s.cfg.ReminderSpec, s.cfg.SavedSearchSpec)

	// Run immediately on startup (non-blocking)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, JobStartup, s.startup)
		s.mu.Lock()
		s.status.StartupComplete = true
		s.mu.Unlock()
		if s.OnStartupComplete != nil {
			s.OnStartupComplete()
		}
	}()

	return nil
}

// Stop cancels in-flight work and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	log.Println("[scheduler] Cron stopped")
}

// RunSync performs an on-demand sync of the trailing days, recorded like a
// scheduled one.
func (s *Scheduler) RunSync(ctx context.Context, days int) (syncer.SyncResult, error) {
	var (
		res syncer.SyncResult
		err error
	)
	s.run(ctx, JobSync, func(ctx context.Context) error {
		res, err = s.deps.Syncer.SyncRecent(ctx, days)
		if err == nil {
			s.recordSync(res)
		}
		return err
	})
	return res, err
}

// StartBackfill launches a backfill in the background, bound to the
// scheduler's lifetime rather than the caller's. It returns false if one is
// already running.
func (s *Scheduler) StartBackfill(months int) bool {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	done, ok := s.deps.Syncer.StartBackfill(ctx, months)
	if !ok {
		return false
	}
	started := s.now()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		report := <-done
		s.mu.Lock()
		s.status.LastBackfill = &report
		s.status.Jobs[JobBackfill] = JobRun{StartedAt: started, FinishedAt: s.now(), Detail: report}
		s.mu.Unlock()
	}()
	return true
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

func (s *Scheduler) startup(ctx context.Context) error {
	if err := s.dailySync(ctx); err != nil {
		log.Printf("[scheduler] Startup sync failed: %v", err)
	}

	n, err := s.deps.Cache.Count(ctx)
	if err != nil {
		return fmt.Errorf("count cache: %w", err)
	}
	if n >= s.cfg.BackfillThreshold {
		log.Printf("[scheduler] Cache holds %d opportunities — no backfill needed", n)
		return nil
	}
	log.Printf("[scheduler] Cache holds %d opportunities (< %d) — starting %d-month backfill",
		n, s.cfg.BackfillThreshold, s.cfg.BackfillMonths)
	s.StartBackfill(s.cfg.BackfillMonths)
	return nil
}

// dailySync refreshes the trailing window and then scores new arrivals.
func (s *Scheduler) dailySync(ctx context.Context) error {
	res, err := s.deps.Syncer.SyncRecent(ctx, s.cfg.SyncDays)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	s.recordSync(res)
	s.run(ctx, JobMatch, s.sweepMatches)
	return nil
}

func (s *Scheduler) recordSync(res syncer.SyncResult) {
	s.mu.Lock()
	s.status.LastSync = &res
	s.mu.Unlock()
}

// sweepReminders claims every due reminder and notifies the ones it won.
// The claim is the conditional PENDING → SENT update, so a reminder raced by
// another sweeper is skipped rather than delivered twice. Delivery itself is
// best effort.
func (s *Scheduler) sweepReminders(ctx context.Context) error {
	now := s.now()
	due, err := s.deps.Tracker.DueReminders(ctx, now)
	if err != nil {
		return fmt.Errorf("due reminders: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	var sent, skipped int
	for _, r := range due {
		if err := s.deps.Tracker.MarkSent(ctx, r.ID, now); err != nil {
			skipped++
			log.Printf("[scheduler] MarkSent(%s) error: %v — not notifying", r.ID, err)
			continue
		}
		s.deps.Notifier.Send(ctx, model.Notification{
			RecipientID: r.UserID,
			Type:        model.NotificationReminder,
			Title:       reminderTitle(r),
			Message:     r.Message,
			Metadata:    map[string]any{"reminderId": r.ID, "noticeId": r.NoticeID},
		})
		sent++
	}
	log.Printf("[scheduler] Reminders — sent=%d skipped=%d", sent, skipped)
	return nil
}

func reminderTitle(r model.Reminder) string {
	if r.Title != "" {
		return r.Title
	}
	return "Reminder for opportunity " + r.NoticeID
}

// sweepSavedSearches evaluates each active saved search against records that
// entered the cache since that search last ran. A search that never ran looks
// back one Lookback; catch-up after a long pause is capped at maxCatchUp
// lookbacks.
func (s *Scheduler) sweepSavedSearches(ctx context.Context) error {
	searches, err := s.deps.Tracker.ActiveSavedSearches(ctx)
	if err != nil {
		return fmt.Errorf("active saved searches: %w", err)
	}
	if len(searches) == 0 {
		log.Println("[scheduler] No active saved searches — nothing to evaluate")
		return nil
	}

	now := s.now()
	since := make([]time.Time, len(searches))
	earliest := now
	for i, ss := range searches {
		since[i] = s.savedSearchSince(ss, now)
		if since[i].Before(earliest) {
			earliest = since[i]
		}
	}
	cached, err := s.deps.Cache.FirstSeenSince(ctx, earliest)
	if err != nil {
		return fmt.Errorf("new opportunities: %w", err)
	}

	var notified int
	for i, ss := range searches {
		if evaluateSavedSearch(ctx, s.deps.Notifier, ss, seenSince(cached, since[i])) {
			notified++
		}
		if err := s.deps.Tracker.MarkSavedSearchRun(ctx, ss.ID, now); err != nil {
			log.Printf("[scheduler] MarkSavedSearchRun(%s) error: %v", ss.ID, err)
		}
	}
	log.Printf("[scheduler] Saved searches — evaluated=%d notified=%d against %d opportunities",
		len(searches), notified, len(cached))
	return nil
}

func (s *Scheduler) savedSearchSince(ss model.SavedSearch, now time.Time) time.Time {
	floor := now.Add(-maxCatchUp * s.cfg.Lookback)
	switch {
	case ss.LastRunAt == nil:
		return now.Add(-s.cfg.Lookback)
	case ss.LastRunAt.Before(floor):
		return floor
	default:
		return *ss.LastRunAt
	}
}

// sweepMatches scores newly cached opportunities against every active
// company profile and records the aggregate counts.
func (s *Scheduler) sweepMatches(ctx context.Context) error {
	profiles, err := s.deps.Tracker.ActiveProfiles(ctx)
	if err != nil {
		return fmt.Errorf("active profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil
	}

	cached, err := s.deps.Cache.FirstSeenSince(ctx, s.now().Add(-s.cfg.Lookback))
	if err != nil {
		return fmt.Errorf("new opportunities: %w", err)
	}
	opps := opportunities(cached)

	for _, p := range profiles {
		scoreProfile(ctx, s.deps.Matches, s.deps.Notifier, p, opps)
	}
	return nil
}

// ─── Plumbing ────────────────────────────────────────────────────────────────

// run executes one job body with panic isolation and records its outcome.
// A failing job never stops the schedule.
func (s *Scheduler) run(ctx context.Context, name string, fn func(context.Context) error) {
	started := s.now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				log.Printf("[scheduler] Job %s panicked: %v\n%s", name, r, debug.Stack())
			}
		}()
		err = fn(ctx)
	}()

	jr := JobRun{StartedAt: started, FinishedAt: s.now()}
	if err != nil {
		jr.Error = err.Error()
		log.Printf("[scheduler] Job %s error: %v", name, err)
	}
	s.mu.Lock()
	s.status.Jobs[name] = jr
	s.mu.Unlock()
}

// seenSince keeps the records first cached at or after t.
func seenSince(cached []model.CachedOpportunity, t time.Time) []model.Opportunity {
	out := make([]model.Opportunity, 0, len(cached))
	for _, c := range cached {
		if !c.FirstSeenAt.Before(t) {
			out = append(out, c.Opportunity)
		}
	}
	return out
}

func opportunities(cached []model.CachedOpportunity) []model.Opportunity {
	out := make([]model.Opportunity, len(cached))
	for i, c := range cached {
		out[i] = c.Opportunity
	}
	return out
}
