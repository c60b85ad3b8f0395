// metrics.go — Prometheus HTTP метрики сервера скриншотов.
// Регистрирует метрики: ssv_http_requests_total, ssv_http_request_duration_seconds.
// Бизнес-метрики (ssv_thumbnails_generated_total и др.) регистрируются
// в соответствующих пакетах.
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
			Name: "ssv_http_requests_total",
			Help: "Общее количество HTTP-запросов к серверу скриншотов",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ssv_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к серверу скриншотов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из других пакетов)
var (
	// ScreenshotsServed — количество отданных файлов скриншотов.
	ScreenshotsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssv_screenshots_served_total",
			Help: "Количество отданных файлов скриншотов",
		},
		[]string{"kind"},
	)

	// ThumbnailsGenerated — количество сгенерированных на лету миниатюр.
	ThumbnailsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssv_thumbnails_generated_total",
			Help: "Количество сгенерированных на лету миниатюр",
		},
		[]string{"result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем идентификаторы и имена файлов на плейсхолдеры
			// для предотвращения роста кардинальности)
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

// normalizePath схлопывает переменные сегменты пути.
// /api/users/123/456 → /api/users/{id3}/{appid}
// /api/users/123/456/shot.jpg → /api/users/{id3}/{appid}/{filename}
func normalizePath(path string) string {
	switch {
	case path == "/health/live", path == "/health/ready", path == "/metrics":
		return path
	case path == "/api/users":
		return "/api/users"
	case strings.HasPrefix(path, "/api/users/"):
		rest := strings.TrimPrefix(path, "/api/users/")
		switch parts := strings.Split(rest, "/"); len(parts) {
		case 1:
			return "/api/users/{id3}"
		case 2:
			return "/api/users/{id3}/{appid}"
		case 3:
			return "/api/users/{id3}/{appid}/{filename}"
		case 4:
			if parts[2] == "t" {
				return "/api/users/{id3}/{appid}/t/{filename}"
			}
		}
	}
	return path
}
