// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"time"

	"github.com/arendadom/image-module/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// ReadinessChecker — проверка готовности одной зависимости.
type ReadinessChecker interface {
	CheckReady() (status string, message string)
}

// SessionCounter — источник количества живых сессий (для диагностики).
type SessionCounter interface {
	Count() int
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// db — проверка готовности PostgreSQL
	db ReadinessChecker
	// storage — проверка готовности объектного хранилища
	storage ReadinessChecker
	// sessions — реестр сессий (количество в ответе ready)
	sessions SessionCounter
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(db, storage ReadinessChecker, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{
		version:  config.Version,
		db:       db,
		storage:  storage,
		sessions: sessions,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "image-module",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет PostgreSQL и объектное хранилище.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	checks := map[string]any{}

	dbStatus, dbMessage := h.db.CheckReady()
	checks["database"] = checkBody(dbStatus, dbMessage)
	if dbStatus != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	storageStatus, storageMessage := h.storage.CheckReady()
	checks["storage"] = checkBody(storageStatus, storageMessage)
	if storageStatus != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "image-module",
		"checks":    checks,
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Count()
	}

	writeJSON(w, httpStatus, resp)
}

// checkBody — тело одной проверки в ответе ready.
func checkBody(status, message string) map[string]any {
	body := map[string]any{"status": status}
	if message != "" {
		body["message"] = message
	}
	return body
}
