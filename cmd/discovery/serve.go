package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"govwatch/discovery-service/internal/api"
	"govwatch/discovery-service/internal/grpcserver"
	"govwatch/discovery-service/internal/notify"
	"govwatch/discovery-service/internal/scheduler"
	"govwatch/discovery-service/internal/tracking"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler with the ops HTTP and gRPC health endpoints",
	Long:  "Starts the cron scheduler (daily sync, reminders, saved searches, match sweep), the ops HTTP API and the gRPC health service. Requires PostgreSQL.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.SQLitePath != "" {
		return errors.New("serve requires PostgreSQL; unset SQLITE_PATH and --sqlite")
	}
	if err := cfg.ValidateNotifier(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Stores ───────────────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// ── Notifications ────────────────────────────────────────────────────────
	sink, closeSink, err := newSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	// ── Scheduler ────────────────────────────────────────────────────────────
	grpcSrv := grpcserver.NewServer()
	sched := scheduler.New(scheduler.Deps{
		Syncer:   newOrchestrator(cfg, st, ""),
		Cache:    st.cache,
		Tracker:  tracking.NewService(st.pool),
		Matches:  st.history,
		Notifier: notify.NewBestEffort(sink),
	}, schedulerConfig(cfg))
	sched.OnStartupComplete = grpcSrv.MarkSyncReady

	// ── Ops HTTP ─────────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	httpSrv := &http.Server{
		Addr:        ":" + cfg.OpsPort,
		Handler:     api.NewRouter(api.NewHandler(sched, st.history, cfg.BackfillMonths, version)),
		ReadTimeout: 10 * time.Second,
		// POST /sync/run waits for the whole sync.
		WriteTimeout: 10 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		sched.Stop()
		return nil
	})
	g.Go(func() error {
		return grpcSrv.Serve(gctx, ":"+cfg.GRPCPort)
	})
	g.Go(func() error {
		log.Printf("[discovery] v%s ops API listening on :%s", version, cfg.OpsPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[discovery] Shutting down…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Println("[discovery] Stopped.")
	return err
}
