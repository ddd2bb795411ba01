// Package syncer drives the opportunity source across date windows and feeds
// the results into the cache.
package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"govwatch/discovery-service/internal/cache"
	"govwatch/discovery-service/internal/credentials"
	"govwatch/discovery-service/internal/model"
	"govwatch/discovery-service/internal/source"
)

// The source takes inclusive dates in this layout.
const paramDateLayout = "01/02/2006"

// Store is the part of the cache the orchestrator writes to.
type Store interface {
	Ingest(ctx context.Context, records []model.RawRecord) (cache.IngestResult, error)
}

// HistoryWriter appends search history rows.
type HistoryWriter interface {
	RecordSearch(ctx context.Context, rec model.SearchHistoryRecord) (model.SearchHistoryRecord, error)
}

// IdentityResolver picks the credential a sync runs under.
type IdentityResolver interface {
	Resolve(ctx context.Context) (credentials.Identity, error)
}

// Options tunes pacing and bounds. Zero delays disable waiting.
type Options struct {
	PageSize     int
	PageDelay    time.Duration
	WindowDelay  time.Duration
	StoreTimeout time.Duration
	Keyword      string
	Now          func() time.Time
}

// DefaultOptions returns the production pacing.
func DefaultOptions() Options {
	return Options{
		PageSize:     source.DefaultPageSize,
		PageDelay:    200 * time.Millisecond,
		WindowDelay:  5 * time.Second,
		StoreTimeout: 60 * time.Second,
	}
}

// SyncResult describes one SyncRange call.
type SyncResult struct {
	Window         model.SyncWindow   `json:"window"`
	TotalAvailable int                `json:"totalAvailable"`
	Fetched        int                `json:"fetched"`
	Pages          int                `json:"pages"`
	Ingest         cache.IngestResult `json:"ingest"`
	HistoryID      uuid.UUID          `json:"historyId"`
}

// Orchestrator is the SyncOrchestrator.
type Orchestrator struct {
	source   source.SourceClient
	store    Store
	history  HistoryWriter
	identity IdentityResolver
	state    *BackfillState
	opts     Options
}

// New constructs an Orchestrator. state is shared with whoever owns the
// backfill lifecycle; nil gets a private one.
func New(src source.SourceClient, store Store, history HistoryWriter, identity IdentityResolver, state *BackfillState, opts Options) *Orchestrator {
	if state == nil {
		state = &BackfillState{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	opts.PageSize = source.ClampPageSize(opts.PageSize)
	return &Orchestrator{
		source:   src,
		store:    store,
		history:  history,
		identity: identity,
		state:    state,
		opts:     opts,
	}
}

// State exposes the backfill guard.
func (o *Orchestrator) State() *BackfillState { return o.state }

// SyncRecent syncs the trailing days up to now.
func (o *Orchestrator) SyncRecent(ctx context.Context, days int) (SyncResult, error) {
	now := o.opts.Now()
	return o.SyncRange(ctx, now.AddDate(0, 0, -days), now)
}

// SyncRange fetches every page for [start, end], ingests the accumulated
// records and writes a history row. The history row is written whether or
// not the attempt succeeded.
func (o *Orchestrator) SyncRange(ctx context.Context, start, end time.Time) (SyncResult, error) {
	res := SyncResult{Window: model.SyncWindow{Start: start, End: end}}
	rec := model.SearchHistoryRecord{
		Params: model.SearchParams{
			PostedFrom: start.Format(paramDateLayout),
			PostedTo:   end.Format(paramDateLayout),
			Keyword:    o.opts.Keyword,
			PageSize:   o.opts.PageSize,
		},
	}

	err := o.syncRange(ctx, &res, &rec)
	if err != nil {
		msg := err.Error()
		rec.Error = &msg
		log.Printf("[syncer] Sync %s..%s failed after %d page(s): %v",
			rec.Params.PostedFrom, rec.Params.PostedTo, res.Pages, err)
	} else {
		log.Printf("[syncer] Sync %s..%s done — pages=%d fetched=%d new=%d existing=%d skipped=%d",
			rec.Params.PostedFrom, rec.Params.PostedTo, res.Pages, res.Fetched,
			res.Ingest.New, res.Ingest.Existing, res.Ingest.Skipped)
	}

	// Failed and cancelled attempts are recorded too.
	hctx, cancel := o.storeContext(context.WithoutCancel(ctx))
	defer cancel()
	saved, herr := o.history.RecordSearch(hctx, rec)
	if herr != nil {
		log.Printf("[syncer] Could not record search history: %v", herr)
	} else {
		res.HistoryID = saved.ID
	}

	return res, err
}

func (o *Orchestrator) syncRange(ctx context.Context, res *SyncResult, rec *model.SearchHistoryRecord) error {
	ident, err := o.identity.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}
	rec.InitiatedBy = ident.OrganizationID

	limit := rate.Inf
	if o.opts.PageDelay > 0 {
		limit = rate.Every(o.opts.PageDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	var records []model.RawRecord
	for {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("page %d: %w", res.Pages+1, err)
		}
		page, err := o.source.Search(ctx, source.Params{
			PostedFrom: res.Window.Start,
			PostedTo:   res.Window.End,
			Keyword:    o.opts.Keyword,
			Limit:      o.opts.PageSize,
			Offset:     len(records),
			Credential: ident.APIKey,
		})
		if err != nil {
			return fmt.Errorf("page %d: %w", res.Pages+1, err)
		}
		res.Pages++
		res.TotalAvailable = page.TotalAvailable
		if len(page.Records) == 0 {
			break
		}
		records = append(records, page.Records...)
		if len(records) >= page.TotalAvailable {
			break
		}
	}
	res.Fetched = len(records)
	rec.TotalAvailable = res.TotalAvailable
	rec.Fetched = res.Fetched

	sctx, cancel := o.storeContext(ctx)
	defer cancel()
	ingest, err := o.store.Ingest(sctx, records)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	res.Ingest = ingest
	rec.New, rec.Existing, rec.Skipped = ingest.New, ingest.Existing, ingest.Skipped
	return nil
}

// Backfill walks monthsBack windows backward from now, newest first. A
// failed window is logged and the walk continues. It returns false without
// doing anything when another backfill is running.
func (o *Orchestrator) Backfill(ctx context.Context, monthsBack int) (BackfillReport, bool) {
	if !o.state.TryStart() {
		log.Println("[syncer] Backfill already running — skipping")
		return BackfillReport{}, false
	}
	defer o.state.Finish()
	return o.walk(ctx, monthsBack), true
}

// StartBackfill claims the backfill guard synchronously and runs the walk in
// the background. The channel receives the report once the walk ends. It
// returns false when another backfill is running.
func (o *Orchestrator) StartBackfill(ctx context.Context, monthsBack int) (<-chan BackfillReport, bool) {
	if !o.state.TryStart() {
		log.Println("[syncer] Backfill already running — skipping")
		return nil, false
	}
	done := make(chan BackfillReport, 1)
	go func() {
		defer close(done)
		var report BackfillReport
		func() {
			defer o.state.Finish()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[syncer] Backfill panic: %v", r)
				}
			}()
			report = o.walk(ctx, monthsBack)
		}()
		done <- report
	}()
	return done, true
}

func (o *Orchestrator) walk(ctx context.Context, monthsBack int) BackfillReport {
	windows := Windows(o.opts.Now(), monthsBack)
	log.Printf("[syncer] Backfill started — %d window(s)", len(windows))

	var report BackfillReport
	for i, w := range windows {
		if i > 0 && !sleep(ctx, o.opts.WindowDelay) {
			report.Cancelled = true
			break
		}

		res, err := o.SyncRange(ctx, w.Start, w.End)
		outcome := WindowOutcome{Index: i, Window: w, Result: &res}
		if err != nil {
			outcome.Error = err.Error()
			report.Failed++
			log.Printf("[syncer] Backfill window %d/%d failed: %v — continuing", i+1, len(windows), err)
		} else {
			report.Succeeded++
		}
		report.Windows = append(report.Windows, outcome)

		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
	}

	log.Printf("[syncer] Backfill finished — succeeded=%d failed=%d cancelled=%t",
		report.Succeeded, report.Failed, report.Cancelled)
	return report
}

func (o *Orchestrator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.opts.StoreTimeout)
}

// sleep waits d or until ctx is done. It reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
