// metrics.go — Prometheus HTTP метрики модуля изображений.
// Регистрирует метрики: im_http_requests_total, im_http_request_duration_seconds.
// Бизнес-метрики (im_uploads_total, im_migrations_total и др.) регистрируются
// в соответствующих пакетах и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_http_requests_total",
			Help: "Общее количество HTTP-запросов к модулю изображений",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "im_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к модулю изображений в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет UUID-сегменты пути на {id} для предотвращения
// взрывного роста кардинальности метрик.
// /api/v1/images/a1b2c3d4-e5f6-7890-abcd-ef1234567890 → /api/v1/images/{id}
func normalizePath(path string) string {
	switch {
	case path == "/health/live", path == "/health/ready", path == "/metrics":
		return path
	case path == "/api/v1/temp/session",
		path == "/api/v1/temp/images",
		path == "/api/v1/images",
		path == "/api/v1/images/main",
		path == "/api/v1/images/migrate":
		return path
	case isUUIDSegment(path, "/api/v1/temp/images/"):
		return "/api/v1/temp/images/{id}"
	case isUUIDSegment(path, "/api/v1/images/"):
		suffix := path[len("/api/v1/images/")+36:]
		switch suffix {
		case "":
			return "/api/v1/images/{id}"
		case "/order":
			return "/api/v1/images/{id}/order"
		case "/main":
			return "/api/v1/images/{id}/main"
		}
	}
	return path
}

// isUUIDSegment проверяет, начинается ли сегмент пути после prefix с UUID.
func isUUIDSegment(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) || len(path) < len(prefix)+36 {
		return false
	}
	segment := path[len(prefix) : len(prefix)+36]
	// Проверяем формат UUID: 8-4-4-4-12
	for i, c := range segment {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
		} else {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
				return false
			}
		}
	}
	return true
}
