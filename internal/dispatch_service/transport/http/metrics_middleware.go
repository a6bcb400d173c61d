package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/postcaster/golang_services/internal/content/domain"
)

const unmatchedRoute = "unmatched"

var (
	adminRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admin_api",
			Name:      "requests_total",
			Help:      "Admin API requests by route pattern, method and status class.",
		},
		[]string{"route", "method", "code_class"},
	)

	adminRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "admin_api",
			Name:      "request_duration_seconds",
			Help:      "Admin API latency by route pattern.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"route"},
	)

	adminAuthRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admin_api",
			Name:      "auth_rejections_total",
			Help:      "Requests refused by bearer authentication, by reason.",
		},
		[]string{"reason"}, // missing_header, bad_scheme, invalid_token
	)

	adminContentChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admin_api",
			Name:      "content_changes_total",
			Help:      "Items created, updated or deleted through the admin API.",
		},
		[]string{"collection", "op"},
	)
)

func recordContentChange(c domain.Collection, op string, n int) {
	adminContentChanges.WithLabelValues(string(c), op).Add(float64(n))
}

// AdminMetricsMiddleware records requests by chi route pattern, so keys in
// the path do not become label values.
func AdminMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		adminRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		adminRequestsTotal.WithLabelValues(route, r.Method, fmt.Sprintf("%dxx", status/100)).Inc()
	})
}
