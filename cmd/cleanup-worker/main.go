package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/config"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/db"
	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

// The chat endpoint already purges stale conversations opportunistically,
// but that only runs while traffic flows. This worker sweeps the table on
// a timer so quiet deployments do not accumulate abandoned sessions.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)
	log.Info("cleanup-worker starting", "env", cfg.Env, "interval", cfg.WorkerInterval.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	repo := clinic.NewPgRepository(pgPool)

	runOnce(rootCtx, repo, cfg, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping cleanup worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, repo, cfg, log)
		}
	}
}

func runOnce(ctx context.Context, repo *clinic.PgRepository, cfg config.Config, log *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-cfg.CleanupMaxAge)
	total := 0
	// Loop until a short batch: the timer sweep clears backlogs the
	// per-request roll never catches up with.
	for {
		n, err := repo.DeleteStaleConversations(runCtx, cutoff, cfg.CleanupBatch)
		if err != nil {
			log.Error("cleanup run failed", "error", err)
			return
		}
		total += n
		if n < cfg.CleanupBatch {
			break
		}
	}
	if total > 0 {
		log.Info("cleanup run complete", "purged", total)
	}
}
