// Command worker is the ingest worker process entrypoint: it binds the
// health server immediately, verifies the database, then enters the
// dispatch loop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"commerce-ingest-worker/internal/clock"
	"commerce-ingest-worker/internal/config"
	"commerce-ingest-worker/internal/dbx"
	"commerce-ingest-worker/internal/dispatcher"
	"commerce-ingest-worker/internal/health"
	"commerce-ingest-worker/internal/jobs"
	"commerce-ingest-worker/internal/logging"
	"commerce-ingest-worker/internal/scheduler"
	"commerce-ingest-worker/internal/store"
	"commerce-ingest-worker/internal/warehouse"
)

func main() {
	log, err := logging.New(logging.Options{Level: "info"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Fatal("fatal startup error", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	cl := clock.System{}
	checker := health.NewChecker(cl)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.Register(engine, checker)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HealthPort),
		Handler: engine,
	}
	go func() {
		if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Error("health server stopped", zap.Error(serveErr))
		}
	}()

	pool, err := dbx.Open(dbx.Options{DSN: cfg.DatabaseURL}, log)
	if err != nil {
		// the health server is already bound and answers 503 while the
		// pool is being opened; a failure here still ends the process.
		return fmt.Errorf("dbx open: %w", err)
	}
	defer pool.Close()

	st := store.New(pool)
	wh := warehouse.New(pool, log)

	registerScheduler(engine, pool, cfg, log)

	if err := verifyDatabase(context.Background(), pool, checker, log); err != nil {
		return fmt.Errorf("database verification: %w", err)
	}

	handlers := jobs.NewHandlers(jobs.Deps{
		Pool:        pool,
		Store:       st,
		Warehouse:   wh,
		Clock:       cl,
		Config:      cfg,
		Log:         log,
		NewCommerce: jobs.NewCommerceClientFactory(st, cfg, log),
		NewAds:      jobs.NewAdsClientFactory(st, cfg, cl, log),
	})

	disp := dispatcher.New(pool.DB, st, handlers, cl, cfg.PollInterval, log)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		disp.Run(stop)
		close(done)
	}()

	waitForShutdown(log)
	close(stop)
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("health server shutdown error", zap.Error(err))
	}

	return nil
}

// verifyDatabase performs the initial select now() probe the health
// endpoint's 200 depends on.
func verifyDatabase(ctx context.Context, pool *dbx.Pool, checker *health.Checker, log *zap.Logger) error {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := checker.Probe(probeCtx, pool.Ping)
	if err != nil {
		return err
	}
	log.Info("database verified")
	return nil
}

// registerScheduler mounts the scheduler endpoint for both source
// families.
func registerScheduler(engine *gin.Engine, pool *dbx.Pool, cfg config.Config, log *zap.Logger) {
	commerceHandler := scheduler.New(pool.DB, scheduler.Config{
		CronSecret:      cfg.CronSecret,
		SourceType:      "commerce",
		IntervalMinutes: cfg.FreshSchedMinutes["commerce"],
		Enabled:         true,
	}, log)

	adsHandler := scheduler.New(pool.DB, scheduler.Config{
		CronSecret:      cfg.CronSecret,
		SourceType:      "ads",
		IntervalMinutes: cfg.FreshSchedMinutes["ads"],
		Enabled:         cfg.AdsJobsEnabled,
	}, log)

	engine.Any("/scheduler/commerce", commerceHandler.ServeHTTP)
	engine.Any("/scheduler/ads", adsHandler.ServeHTTP)
}

// waitForShutdown blocks until SIGTERM/SIGINT, letting the in-flight run
// drain instead of aborting it mid-flight.
func waitForShutdown(log *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Info("received shutdown signal", zap.String("signal", sig.String()))
}
