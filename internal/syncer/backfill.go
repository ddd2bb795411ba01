package syncer

import (
	"sync/atomic"
	"time"

	"govwatch/discovery-service/internal/model"
)

// WindowDays is the width of one backfill window.
const WindowDays = 30

// BackfillState guards against concurrent backfills. The zero value is idle.
type BackfillState struct {
	running atomic.Bool
}

// TryStart moves idle to running. It reports false if a backfill is
// already running.
func (s *BackfillState) TryStart() bool { return s.running.CompareAndSwap(false, true) }

// Finish moves running back to idle.
func (s *BackfillState) Finish() { s.running.Store(false) }

// Running reports whether a backfill is in progress.
func (s *BackfillState) Running() bool { return s.running.Load() }

// WindowOutcome is the result of one backfill window.
type WindowOutcome struct {
	Index  int              `json:"index"`
	Window model.SyncWindow `json:"window"`
	Result *SyncResult      `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// BackfillReport collects every window a backfill walked through.
type BackfillReport struct {
	Windows   []WindowOutcome `json:"windows"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Cancelled bool            `json:"cancelled"`
}

// Windows returns n day-granular windows walking backward from now, newest
// first. Window i spans [today-30(i+1)+1, today-30i] days. Bounds are
// inclusive, so consecutive windows neither overlap nor leave a gap.
func Windows(now time.Time, n int) []model.SyncWindow {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	out := make([]model.SyncWindow, 0, n)
	for i := 0; i < n; i++ {
		end := today.AddDate(0, 0, -WindowDays*i)
		start := today.AddDate(0, 0, -WindowDays*(i+1)+1)
		out = append(out, model.SyncWindow{Start: start, End: end})
	}
	return out
}
