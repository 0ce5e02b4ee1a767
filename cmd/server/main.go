// Package main is the entrypoint for the thermalscan API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/thermalscan/internal/api"
	"github.com/avolkov/thermalscan/internal/api/handler"
	mw "github.com/avolkov/thermalscan/internal/api/middleware"
	"github.com/avolkov/thermalscan/internal/api/response"
	"github.com/avolkov/thermalscan/internal/cache"
	"github.com/avolkov/thermalscan/internal/config"
	"github.com/avolkov/thermalscan/internal/detect"
	"github.com/avolkov/thermalscan/internal/imaging"
	"github.com/avolkov/thermalscan/internal/jobs"
	"github.com/avolkov/thermalscan/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "detector_provider", cfg.Detector.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the job store. The directory on disk is the source of truth;
	// jobs from a previous run stay readable.
	fileStore, err := store.NewFileStore(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	slog.Info("job store ready", "dir", cfg.Storage.Dir)

	// 3. Cache is optional: without Redis the rate limiter is disabled and
	// status lookups always hit the store.
	var jobCache cache.Cache = cache.Noop{}
	var rateLimit *mw.RateLimit
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		jobCache = redisCache
		rateLimit = mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin)
	}

	// 4. Create detection provider
	detector, err := detect.NewDetector(cfg.Detector)
	if err != nil {
		return fmt.Errorf("create detector: %w", err)
	}
	slog.Info("detector initialized", "provider", detector.Name())

	// 5. Job service
	svc := jobs.NewService(fileStore, detector, jobCache, jobs.Options{
		DefaultConfidence: cfg.Detector.ConfidenceThreshold,
		SaveAllOutputs:    cfg.Detector.SaveAllOutputs,
		DetectTimeout:     cfg.Detector.Timeout,
	})

	// 6. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: rateLimit,

		HealthHandler:     healthHandler(fileStore, jobCache, detector),
		CreateJobHandler:  handler.NewCreateJobHandler(svc, cfg.Server.MaxUploadBytes),
		JobStatusHandler:  handler.NewJobStatusHandler(svc),
		JobResultsHandler: handler.NewJobResultsHandler(svc),
		JobImageHandler:   handler.NewJobImageHandler(svc, imaging.MIMEType),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout. In-flight jobs keep writing to disk
	// until their goroutines finish; their state survives on disk regardless.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// readinessChecker is implemented by detectors that can report whether the
// backing inference service is reachable.
type readinessChecker interface {
	Ready(ctx context.Context) error
}

// healthHandler checks storage, cache, and detector connectivity.
func healthHandler(s store.Store, c cache.Cache, detector any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"storage":  "ok",
			"cache":    "ok",
			"detector": "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["storage"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if rc, ok := detector.(readinessChecker); ok {
			if err := rc.Ready(r.Context()); err != nil {
				checks["detector"] = "degraded"
			}
		}

		degraded := false
		for _, v := range checks {
			if v != "ok" {
				degraded = true
			}
		}
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
