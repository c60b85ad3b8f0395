// screenshots.go — HTTP handlers листинга и отдачи скриншотов.
// Листинг, полноразмерный файл, миниатюра (готовая Steam или
// сгенерированная на лету).
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/screenshot-server/internal/api/errors"
	"github.com/bigkaa/screenshot-server/internal/api/middleware"
	"github.com/bigkaa/screenshot-server/internal/domain/model"
	"github.com/bigkaa/screenshot-server/internal/screenshots"
	"github.com/bigkaa/screenshot-server/internal/steam"
	"github.com/bigkaa/screenshot-server/internal/thumbs"
)

// defaultPerPage — размер страницы по умолчанию.
const defaultPerPage = 10

// ScreenshotsHandler — обработчик endpoints скриншотов.
type ScreenshotsHandler struct {
	resolver *steam.Resolver
	index    *screenshots.Index
	thumbs   *thumbs.Generator
}

// NewScreenshotsHandler создаёт обработчик endpoints скриншотов.
func NewScreenshotsHandler(resolver *steam.Resolver, index *screenshots.Index, gen *thumbs.Generator) *ScreenshotsHandler {
	return &ScreenshotsHandler{
		resolver: resolver,
		index:    index,
		thumbs:   gen,
	}
}

// listResponse — тело ответа листинга скриншотов.
type listResponse struct {
	App         *model.AppInfo   `json:"app"`
	Screenshots []string         `json:"screenshots"`
	Pagination  model.Pagination `json:"pagination"`
}

// ListScreenshots обрабатывает GET /api/users/{id3}/{appid}.
// Query-параметры: page (0-based, по умолчанию 0), per_page
// (из множества {10,20,50,100}, по умолчанию 10).
func (h *ScreenshotsHandler) ListScreenshots(w http.ResponseWriter, r *http.Request) {
	id3, ok := userIDParam(w, r)
	if !ok {
		return
	}
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}

	if _, err := h.resolver.User(id3); err != nil {
		apierrors.NotFound(w, "Пользователь не найден")
		return
	}

	page, err := queryInt(r, "page", 0)
	if err != nil {
		apierrors.InvalidArgument(w, "Некорректное значение page")
		return
	}
	perPage, err := queryInt(r, "per_page", defaultPerPage)
	if err != nil {
		apierrors.InvalidArgument(w, "Некорректное значение per_page")
		return
	}

	names, pagination, err := h.index.List(id3, appID, page, perPage)
	if err != nil {
		switch {
		case errors.Is(err, screenshots.ErrInvalidPageSize):
			apierrors.InvalidArgument(w, "per_page должен быть одним из: 10, 20, 50, 100")
		case errors.Is(err, screenshots.ErrInvalidPage):
			apierrors.InvalidArgument(w, "page должен быть неотрицательным")
		default:
			apierrors.InternalError(w, "Не удалось прочитать каталог скриншотов")
		}
		return
	}

	// Каталог скриншотов сам по себе подтверждает существование
	// приложения, даже если его нет ни в каталоге Steam, ни среди
	// ярлыков: подставляем заглушку вместо ошибки.
	app, err := h.resolver.ResolveApp(id3, appID)
	if err != nil {
		app = steam.UnknownApp(appID)
	}

	apierrors.WriteData(w, http.StatusOK, listResponse{
		App:         app,
		Screenshots: names,
		Pagination:  pagination,
	})
}

// GetScreenshot обрабатывает GET /api/users/{id3}/{appid}/{filename}.
// Отдаёт полноразмерный файл с поддержкой Range и If-Modified-Since
// (http.ServeContent).
func (h *ScreenshotsHandler) GetScreenshot(w http.ResponseWriter, r *http.Request) {
	id3, appID, filename, ok := h.fileParams(w, r)
	if !ok {
		return
	}

	path, err := h.index.Resolve(id3, appID, filename)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	middleware.ScreenshotsServed.WithLabelValues("full").Inc()
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	serveFile(w, r, path)
}

// GetThumbnail обрабатывает GET /api/users/{id3}/{appid}/t/{filename}.
// Сначала ищет готовую миниатюру Steam (thumbnails/{имя}.jpg),
// при её отсутствии генерирует миниатюру из полного изображения.
func (h *ScreenshotsHandler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id3, appID, filename, ok := h.fileParams(w, r)
	if !ok {
		return
	}

	if path, err := h.index.ResolveThumbnail(id3, appID, filename); err == nil {
		middleware.ScreenshotsServed.WithLabelValues("thumb_premade").Inc()
		serveFile(w, r, path)
		return
	} else if errors.Is(err, screenshots.ErrForbidden) {
		writeResolveError(w, err)
		return
	}

	// Готовой миниатюры нет — генерируем из полного файла.
	path, err := h.index.Resolve(id3, appID, filename)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	data, modTime, err := h.thumbs.FromFile(path)
	if err != nil {
		apierrors.InternalError(w, "Не удалось сгенерировать миниатюру")
		return
	}

	middleware.ScreenshotsServed.WithLabelValues("thumb_generated").Inc()
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, filename+".jpg", modTime, bytes.NewReader(data))
}

// fileParams извлекает параметры файловых endpoints и проверяет
// существование пользователя.
func (h *ScreenshotsHandler) fileParams(w http.ResponseWriter, r *http.Request) (uint64, uint32, string, bool) {
	id3, ok := userIDParam(w, r)
	if !ok {
		return 0, 0, "", false
	}
	appID, ok := appIDParam(w, r)
	if !ok {
		return 0, 0, "", false
	}
	if _, err := h.resolver.User(id3); err != nil {
		apierrors.NotFound(w, "Пользователь не найден")
		return 0, 0, "", false
	}

	filename := chi.URLParam(r, "filename")
	// chi отдаёт сегмент в экранированном виде; %2F и подобные
	// должны раскрыться до проверки на обход каталогов.
	if unescaped, uerr := url.PathUnescape(filename); uerr == nil {
		filename = unescaped
	}
	if filename == "" {
		apierrors.InvalidArgument(w, "Имя файла не задано")
		return 0, 0, "", false
	}
	return id3, appID, filename, true
}

// writeResolveError переводит ошибки резолвинга путей в HTTP-ответы.
func writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, screenshots.ErrForbidden):
		apierrors.Forbidden(w, "Путь вне каталога скриншотов")
	case errors.Is(err, screenshots.ErrNotFound):
		apierrors.NotFound(w, "Файл не найден")
	default:
		apierrors.InternalError(w, "Не удалось открыть файл")
	}
}

// serveFile отдаёт файл с корректным Content-Type по расширению.
func serveFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		apierrors.NotFound(w, "Файл не найден")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		apierrors.InternalError(w, "Не удалось открыть файл")
		return
	}

	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

// queryInt возвращает целочисленный query-параметр или значение по умолчанию.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
