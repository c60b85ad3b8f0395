// Пакет errors — единый конверт HTTP-ответов и конструкторы ошибок.
// Формат успеха: {"ok": true, "data": ...}.
// Формат ошибки: {"ok": false, "error": {"code": "...", "message": "..."}}.
package errors //nolint:revive // имя пакета повторяет стиль остального API-слоя

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeParseError         = "PARSE_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidState       = "INVALID_STATE"
	CodeProcessFailure     = "PROCESS_FAILURE"
	CodeStopTimedOut       = "STOP_TIMED_OUT"
	CodeWarningNotAccepted = "WARNING_NOT_ACCEPTED"
	CodePortInUse          = "PORT_IN_USE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// envelope — конверт ответа.
type envelope struct {
	OK    bool         `json:"ok"`
	Data  any          `json:"data,omitempty"`
	Error *errorDetail `json:"error,omitempty"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteData записывает успешный ответ в конверте.
func WriteData(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(envelope{OK: true, Data: data})
}

// WriteError записывает ответ с ошибкой в конверте.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(envelope{
		OK:    false,
		Error: &errorDetail{Code: code, Message: message},
	})
}

// --- Конструкторы типичных ошибок ---

// InvalidArgument — 400 некорректный аргумент запроса.
func InvalidArgument(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidArgument, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Forbidden — 403 путь вне разрешённого корня.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// InvalidState — 409 операция недопустима в текущем состоянии.
func InvalidState(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeInvalidState, message)
}

// WarningNotAccepted — 409 требуется принять предупреждение.
func WarningNotAccepted(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeWarningNotAccepted, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
