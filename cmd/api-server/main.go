package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/api"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/booking"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/chatbot"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/config"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/db"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/intent"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/llm"
	redisclient "github.com/clinicdesk/clinic-scheduling-bot/internal/redis"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/scheduling"
	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)
	log.Info("api-server starting", "env", cfg.Env, "http_port", cfg.HTTPPort)

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

	rdb, err := redisclient.NewClient(redisclient.Options{
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DialTimeout: cfg.RedisTimeout,
		PoolSize:    cfg.RedisPoolSize,
	})
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", "error", err)
		}
	}()
	log.Info("connected to Redis")

	var classifier llm.Classifier
	if cfg.OpenAIKey != "" {
		classifier = llm.NewOpenAIClassifier(cfg.OpenAIKey, cfg.OpenAIModel)
		log.Info("intent classifier enabled", "model", cfg.OpenAIModel)
	} else {
		log.Warn("OPENAI_API_KEY not set, running on keyword matching only")
	}

	repo := clinic.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	resolver := scheduling.NewResolver(repo, cfg.SlotHorizonDays, cfg.SlotLeadTime, cfg.SlotCap)
	booker := booking.NewService(repo, locker, log)
	detector := intent.NewDetector(classifier, log)
	engine := chatbot.NewEngine(repo, resolver, booker, detector, classifier, log)

	router := api.NewRouter(api.RouterConfig{
		Repo:   repo,
		Engine: engine,
		Slots:  resolver,
		Cleanup: api.CleanupPolicy{
			OneIn:  cfg.CleanupOneIn,
			MaxAge: cfg.CleanupMaxAge,
			Batch:  cfg.CleanupBatch,
		},
		PgPool:  pgPool,
		Redis:   rdb,
		Log:     log,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}

	log.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
