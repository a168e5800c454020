package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

type RouterConfig struct {
	Repo    *clinic.PgRepository
	Engine  Conversationalist
	Slots   Availability
	Cleanup CleanupPolicy
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Log     *logging.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	chat := NewChatHandler(cfg.Repo, cfg.Engine, cfg.Cleanup, cfg.Log)
	r.Post("/chat", chat.Chat)

	r.Get("/locations", listLocationsHandler(cfg.Repo))
	r.Get("/specialties", listSpecialtiesHandler(cfg.Repo))
	r.Post("/availability/check", checkAvailabilityHandler(cfg.Repo, cfg.Slots))

	r.Put("/admin/config", updateConfigHandler(cfg.Repo, cfg.Log))

	return r
}
