// Package api implements the ops HTTP surface of the discovery service.
//
// Routes:
//
//	GET  /health                   → liveness
//	GET  /sync/status              → scheduler and backfill state
//	GET  /sync/history?limit=20    → most recent sync attempts
//	POST /sync/run?days=7          → synchronous sync of the trailing days
//	POST /sync/backfill?months=12  → start a backfill (202, or 409 if running)
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"govwatch/discovery-service/internal/model"
	"govwatch/discovery-service/internal/scheduler"
	"govwatch/discovery-service/internal/source"
	"govwatch/discovery-service/internal/syncer"
)

const (
	defaultDays    = 7
	maxDays        = 365
	maxMonths      = 120
	defaultHistory = 20
	maxHistory     = 200
)

// Controller is the slice of the scheduler exposed over HTTP.
type Controller interface {
	Status() scheduler.Status
	RunSync(ctx context.Context, days int) (syncer.SyncResult, error)
	StartBackfill(months int) bool
}

// HistoryReader lists recent sync attempts.
type HistoryReader interface {
	RecentSearches(ctx context.Context, limit int) ([]model.SearchHistoryRecord, error)
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	ctrl           Controller
	history        HistoryReader
	defaultMonths  int
	serviceVersion string
}

// NewHandler returns a configured Handler. defaultMonths is used when a
// backfill request omits months.
func NewHandler(ctrl Controller, history HistoryReader, defaultMonths int, version string) *Handler {
	return &Handler{ctrl: ctrl, history: history, defaultMonths: defaultMonths, serviceVersion: version}
}

// NewRouter constructs a Gin engine with every ops route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the ops routes on r.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.health)
	r.GET("/sync/status", h.status)
	r.GET("/sync/history", h.recentHistory)
	r.POST("/sync/run", h.runSync)
	r.POST("/sync/backfill", h.backfill)
}

// ─── Routes ──────────────────────────────────────────────────────────────────

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "discovery-service",
		"version": h.serviceVersion,
	})
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Status())
}

func (h *Handler) recentHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history is not available"})
		return
	}
	limit, ok := intQuery(c, "limit", defaultHistory, 1, maxHistory)
	if !ok {
		return
	}
	recs, err := h.history.RecentSearches(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) runSync(c *gin.Context) {
	days, ok := intQuery(c, "days", defaultDays, 1, maxDays)
	if !ok {
		return
	}
	res, err := h.ctrl.RunSync(c.Request.Context(), days)
	if err != nil {
		c.JSON(syncErrorStatus(err), gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) backfill(c *gin.Context) {
	months, ok := intQuery(c, "months", h.defaultMonths, 1, maxMonths)
	if !ok {
		return
	}
	if !h.ctrl.StartBackfill(months) {
		c.JSON(http.StatusConflict, gin.H{"error": "a backfill is already running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "months": months})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// intQuery parses an optional integer query parameter within [lo, hi]. On a
// bad value it writes a 400 and returns false.
func intQuery(c *gin.Context, key string, def, lo, hi int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": key + " must be an integer between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi),
		})
		return 0, false
	}
	return v, true
}

// syncErrorStatus maps sync failures to HTTP status codes.
func syncErrorStatus(err error) int {
	var cfgErr *source.ConfigurationError
	if errors.As(err, &cfgErr) {
		return http.StatusServiceUnavailable
	}
	var unavailable *source.UnavailableError
	if errors.As(err, &unavailable) {
		return http.StatusBadGateway
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
