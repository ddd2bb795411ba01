package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govwatch/discovery-service/internal/api"
	"govwatch/discovery-service/internal/model"
	"govwatch/discovery-service/internal/scheduler"
	"govwatch/discovery-service/internal/source"
	"govwatch/discovery-service/internal/syncer"
)

func init() { gin.SetMode(gin.TestMode) }

// ── Fakes ─────────────────────────────────────────────────────────────────

type fakeController struct {
	status    scheduler.Status
	syncErr   error
	syncDays  []int
	running   bool
	backfills []int
}

func (f *fakeController) Status() scheduler.Status { return f.status }

func (f *fakeController) RunSync(_ context.Context, days int) (syncer.SyncResult, error) {
	f.syncDays = append(f.syncDays, days)
	return syncer.SyncResult{Fetched: 4, Pages: 1}, f.syncErr
}

func (f *fakeController) StartBackfill(months int) bool {
	if f.running {
		return false
	}
	f.backfills = append(f.backfills, months)
	return true
}

type fakeHistory struct {
	limit int
	err   error
}

func (f *fakeHistory) RecentSearches(_ context.Context, limit int) ([]model.SearchHistoryRecord, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []model.SearchHistoryRecord{{Fetched: 10}}, nil
}

func serve(t *testing.T, h *api.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := api.NewRouter(h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	h := api.NewHandler(&fakeController{}, nil, 12, "1.2.3")
	w := serve(t, h, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestStatus(t *testing.T) {
	ctrl := &fakeController{status: scheduler.Status{Started: true, BackfillRunning: true, Jobs: map[string]scheduler.JobRun{}}}
	w := serve(t, api.NewHandler(ctrl, nil, 12, "dev"), http.MethodGet, "/sync/status")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["backfillRunning"])
	assert.Equal(t, false, body["startupComplete"])
}

func TestRunSync(t *testing.T) {
	ctrl := &fakeController{}
	h := api.NewHandler(ctrl, nil, 12, "dev")

	w := serve(t, h, http.MethodPost, "/sync/run")
	require.Equal(t, http.StatusOK, w.Code)
	w = serve(t, h, http.MethodPost, "/sync/run?days=30")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []int{7, 30}, ctrl.syncDays)
	var res syncer.SyncResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 4, res.Fetched)
}

func TestRunSync_BadDays(t *testing.T) {
	ctrl := &fakeController{}
	h := api.NewHandler(ctrl, nil, 12, "dev")
	for _, q := range []string{"abc", "0", "-1", "366"} {
		w := serve(t, h, http.MethodPost, "/sync/run?days="+q)
		assert.Equal(t, http.StatusBadRequest, w.Code, "days=%s", q)
	}
	assert.Empty(t, ctrl.syncDays)
}

func TestRunSync_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("page 1: %w", &source.ConfigurationError{Msg: "no credential"}), http.StatusServiceUnavailable},
		{fmt.Errorf("page 2: %w", &source.UnavailableError{StatusCode: 500}), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		ctrl := &fakeController{syncErr: tc.err}
		w := serve(t, api.NewHandler(ctrl, nil, 12, "dev"), http.MethodPost, "/sync/run")
		assert.Equal(t, tc.code, w.Code, "err=%v", tc.err)
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}

func TestBackfill_AcceptedThenConflict(t *testing.T) {
	ctrl := &fakeController{}
	h := api.NewHandler(ctrl, nil, 12, "dev")

	w := serve(t, h, http.MethodPost, "/sync/backfill")
	assert.Equal(t, http.StatusAccepted, w.Code)
	w = serve(t, h, http.MethodPost, "/sync/backfill?months=3")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []int{12, 3}, ctrl.backfills)

	ctrl.running = true
	w = serve(t, h, http.MethodPost, "/sync/backfill")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBackfill_BadMonths(t *testing.T) {
	w := serve(t, api.NewHandler(&fakeController{}, nil, 12, "dev"), http.MethodPost, "/sync/backfill?months=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistory(t *testing.T) {
	hist := &fakeHistory{}
	h := api.NewHandler(&fakeController{}, hist, 12, "dev")

	w := serve(t, h, http.MethodGet, "/sync/history?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, hist.limit)

	hist.err = errors.New("db down")
	w = serve(t, h, http.MethodGet, "/sync/history")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 20, hist.limit)
}

func TestHistory_Unavailable(t *testing.T) {
	w := serve(t, api.NewHandler(&fakeController{}, nil, 12, "dev"), http.MethodGet, "/sync/history")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	w := serve(t, api.NewHandler(&fakeController{}, nil, 12, "dev"), http.MethodGet, "/applications")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
