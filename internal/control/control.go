// Пакет control — HTTP control API супервизора.
//
// Слушает только loopback и управляет жизненным циклом дочернего
// сервера: статус, запуск/остановка, принудительное убийство,
// настройки порта и принятие предупреждения. Ответы — в том же
// конверте {ok, data|error}, что и публичный API.
package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/screenshot-server/internal/api/errors"
	"github.com/bigkaa/screenshot-server/internal/api/middleware"
	"github.com/bigkaa/screenshot-server/internal/supervisor"
)

// Handler — обработчик control API.
type Handler struct {
	sup    *supervisor.Supervisor
	logger *slog.Logger
}

// NewHandler создаёт обработчик control API.
func NewHandler(sup *supervisor.Supervisor, logger *slog.Logger) *Handler {
	return &Handler{
		sup:    sup,
		logger: logger.With(slog.String("component", "control")),
	}
}

// NewRouter собирает chi-роутер control API.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestLogger(logger))

	router.Get("/api/status", h.GetStatus)
	router.Get("/api/error", h.GetError)
	router.Post("/api/server", h.SetServer)
	router.Post("/api/server/kill", h.KillServer)
	router.Put("/api/settings/port", h.SetPort)
	router.Post("/api/settings/warning", h.AcceptWarning)

	return router
}

// GetStatus обрабатывает GET /api/status.
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	apierrors.WriteData(w, http.StatusOK, h.sup.Status())
}

// GetError обрабатывает GET /api/error.
// Возвращает сообщение последней ошибки жизненного цикла либо null.
func (h *Handler) GetError(w http.ResponseWriter, _ *http.Request) {
	apierrors.WriteData(w, http.StatusOK, map[string]any{
		"error": h.sup.LastError(),
	})
}

// setServerRequest — тело POST /api/server.
type setServerRequest struct {
	Enable bool `json:"enable"`
}

// SetServer обрабатывает POST /api/server: запуск (enable=true) или
// остановку (enable=false) дочернего сервера.
func (h *Handler) SetServer(w http.ResponseWriter, r *http.Request) {
	var req setServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeParseError,
			"Некорректное тело запроса")
		return
	}

	if err := h.sup.StartServer(req.Enable); err != nil {
		h.writeLifecycleError(w, err)
		return
	}

	apierrors.WriteData(w, http.StatusOK, map[string]any{
		"running": h.sup.Status().Running,
	})
}

// KillServer обрабатывает POST /api/server/kill.
// Идемпотентен: на остановленном сервере — успех без изменений.
func (h *Handler) KillServer(w http.ResponseWriter, _ *http.Request) {
	if err := h.sup.ForceKill(); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	apierrors.WriteData(w, http.StatusOK, map[string]any{"running": false})
}

// setPortRequest — тело PUT /api/settings/port.
type setPortRequest struct {
	Port int `json:"port"`
}

// SetPort обрабатывает PUT /api/settings/port.
func (h *Handler) SetPort(w http.ResponseWriter, r *http.Request) {
	var req setPortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeParseError,
			"Некорректное тело запроса")
		return
	}

	if err := h.sup.SetPort(req.Port); err != nil {
		h.writeLifecycleError(w, err)
		return
	}

	apierrors.WriteData(w, http.StatusOK, map[string]any{"port": req.Port})
}

// AcceptWarning обрабатывает POST /api/settings/warning.
func (h *Handler) AcceptWarning(w http.ResponseWriter, _ *http.Request) {
	if err := h.sup.SetAcceptedWarning(); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	apierrors.WriteData(w, http.StatusOK, map[string]any{"accepted_warning": true})
}

// writeLifecycleError переводит ошибки супервизора в HTTP-ответы.
func (h *Handler) writeLifecycleError(w http.ResponseWriter, err error) {
	var te *supervisor.TransitionError
	if errors.As(err, &te) {
		apierrors.WriteError(w, http.StatusConflict, te.Code, te.Message)
		return
	}

	le, ok := supervisor.IsLifecycleError(err)
	if !ok {
		apierrors.InternalError(w, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch le.Code {
	case apierrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case apierrors.CodeInvalidState, apierrors.CodeWarningNotAccepted, apierrors.CodePortInUse:
		status = http.StatusConflict
	}
	apierrors.WriteError(w, status, le.Code, le.Message)
}
