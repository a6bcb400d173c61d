package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessProbe reports whether the service dependencies are reachable.
type ReadinessProbe func(ctx context.Context) error

// NewRouter mounts the admin API under /api/v1 behind bearer auth, plus the
// unauthenticated /healthz and /metrics endpoints. loc is the dispatch
// timezone used to report scheduled hours.
func NewRouter(store AdminStore, jwtSecret string, loc *time.Location, ready ReadinessProbe, logger *slog.Logger) http.Handler {
	handler := NewAdminHandler(store, loc, logger, validator.New())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(AdminMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				logger.WarnContext(ctx, "Readiness check failed", "error", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AdminAuthMiddleware(jwtSecret, logger))

		r.Post("/posts", handler.CreatePosts)
		r.Get("/posts", handler.ListPosts)
		r.Put("/posts/{key}", handler.UpdatePost)

		r.Post("/scheduled", handler.CreateScheduled)
		r.Get("/scheduled", handler.ListScheduled)
		r.Delete("/scheduled/{key}", handler.DeleteScheduled)
	})
	return r
}
