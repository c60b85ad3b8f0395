// health.go — обработчики health endpoints.
// /health/live — процесс жив; /health/ready — каталоги Steam
// прочитаны и резолвер готов отвечать (супервизор опрашивает этот
// endpoint, чтобы объявить сервер запущенным).
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bigkaa/screenshot-server/internal/config"
)

// ReadinessChecker — интерфейс для проверки готовности резолвера.
type ReadinessChecker interface {
	Ready() bool
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version  string
	steamDir string
	resolver ReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(steamDir string, resolver ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version:  config.Version,
		steamDir: steamDir,
		resolver: resolver,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "screenshot-server",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Возвращает 200, когда метаданные Steam загружены.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	if h.resolver == nil || !h.resolver.Ready() {
		status = "fail"
		httpStatus = http.StatusServiceUnavailable
	}

	writeHealth(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "screenshot-server",
		"checks": map[string]any{
			"steam_root": h.steamDir,
			"resolver":   status,
		},
	})
}

func writeHealth(w http.ResponseWriter, statusCode int, resp map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
