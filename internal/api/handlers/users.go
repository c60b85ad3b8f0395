// users.go — HTTP handlers списка пользователей и их приложений.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/screenshot-server/internal/api/errors"
	"github.com/bigkaa/screenshot-server/internal/steam"
)

// UsersHandler — обработчик endpoints пользователей.
type UsersHandler struct {
	resolver *steam.Resolver
}

// NewUsersHandler создаёт обработчик endpoints пользователей.
func NewUsersHandler(resolver *steam.Resolver) *UsersHandler {
	return &UsersHandler{resolver: resolver}
}

// ListUsers обрабатывает GET /api/users.
// Пользователи отсортированы по времени последней активности (свежие первые).
func (h *UsersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	apierrors.WriteData(w, http.StatusOK, h.resolver.Users())
}

// ListUserApps обрабатывает GET /api/users/{id3}.
// Возвращает приложения пользователя, у которых есть хотя бы один
// каталог скриншотов.
func (h *UsersHandler) ListUserApps(w http.ResponseWriter, r *http.Request) {
	id3, ok := userIDParam(w, r)
	if !ok {
		return
	}

	apps, err := h.resolver.AppsForUser(id3)
	if err != nil {
		if errors.Is(err, steam.ErrUserNotFound) {
			apierrors.NotFound(w, "Пользователь не найден")
			return
		}
		apierrors.InternalError(w, "Не удалось получить список приложений")
		return
	}

	apierrors.WriteData(w, http.StatusOK, apps)
}

// userIDParam извлекает и валидирует параметр пути {id3}.
func userIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id3")
	id3, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		apierrors.InvalidArgument(w, "Некорректный идентификатор пользователя")
		return 0, false
	}
	return id3, true
}

// appIDParam извлекает и валидирует параметр пути {appid}.
func appIDParam(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := chi.URLParam(r, "appid")
	appID, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		apierrors.InvalidArgument(w, "Некорректный идентификатор приложения")
		return 0, false
	}
	return uint32(appID), true
}
