// metrics.go — Prometheus HTTP метрики галереи.
// Бизнес-метрики (gallery_ingest_total и др.) регистрируются в сервисном слое.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Metrics собирает количество и длительность запросов по нормализованному пути.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath сводит пути с идентификаторами и статикой к шаблонам,
// чтобы не раздувать кардинальность метрик.
//
//	/api/photos/3f2a...  → /api/photos/{hash}
//	/photos/3f2a....png  → /photos/{file}
//	/api/unknown         → /api/*
//	/static/app.js       → /*
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/photos", "/api/info", "/api/maintenance/reconcile":
		return path
	}

	switch {
	case strings.HasPrefix(path, "/api/photos/") && !strings.Contains(path[len("/api/photos/"):], "/"):
		return "/api/photos/{hash}"
	case strings.HasPrefix(path, "/api/"):
		return "/api/*"
	case strings.HasPrefix(path, "/photos/"):
		return "/photos/{file}"
	}
	return "/*"
}
