// metrics.go — Prometheus HTTP метрики Identity Module:
// im_http_requests_total, im_http_request_duration_seconds.
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
			Name: "im_http_requests_total",
			Help: "Общее количество HTTP-запросов к Identity Module",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "im_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Identity Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// dynamicPrefixes — маршруты с параметром в последнем сегменте.
var dynamicPrefixes = []struct {
	prefix string
	result string
}{
	{"/api/v1/auth/user-check/", "/api/v1/auth/user-check/{username}"},
	{"/api/v1/roles/user/", "/api/v1/roles/user/{username}"},
	{"/api/v1/users/", "/api/v1/users/{id}"},
}

// normalizePath заменяет username и ID в пути на шаблон, чтобы
// кардинальность лейбла path оставалась ограниченной.
func normalizePath(path string) string {
	switch path {
	case "/api/v1/users/create", "/api/v1/users/create-pulsar-system", "/api/v1/users/admin/health":
		return path
	}

	for _, p := range dynamicPrefixes {
		rest, ok := strings.CutPrefix(path, p.prefix)
		if ok && rest != "" && !strings.Contains(rest, "/") {
			return p.result
		}
	}
	return path
}
