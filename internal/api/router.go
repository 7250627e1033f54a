package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Service   BookingService
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret []byte
	Logger    *zap.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/api/doctors/{doctorID}/slots", listSlotsHandler(cfg.Service))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/api/slots/lock", lockSlotHandler(cfg.Service))
		r.Post("/api/slots/release", releaseSlotHandler(cfg.Service))

		r.Post("/api/appointments", createAppointmentHandler(cfg.Service))
		r.Get("/api/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/api/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/api/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
		r.Post("/api/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
		r.Post("/api/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Post("/api/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
	})

	return r
}
