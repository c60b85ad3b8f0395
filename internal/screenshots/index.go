// Пакет screenshots — индекс скриншотов поверх файловой системы Steam.
//
// Индекс не кэширует состояние между запросами: каждый List читает
// каталог заново и отражает живое состояние диска. Порядок листинга
// тотальный и стабильный: имена файлов по убыванию (имена скриншотов
// Steam начинаются с сортируемого таймштампа, поэтому свежие первые).
package screenshots

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bigkaa/screenshot-server/internal/domain/model"
	"github.com/bigkaa/screenshot-server/internal/steam"
)

// Ошибки индекса.
var (
	// ErrInvalidPageSize — размер страницы вне множества {10,20,50,100}.
	ErrInvalidPageSize = errors.New("недопустимый размер страницы")
	// ErrInvalidPage — отрицательный номер страницы.
	ErrInvalidPage = errors.New("недопустимый номер страницы")
	// ErrForbidden — попытка выйти за пределы каталога скриншотов.
	ErrForbidden = errors.New("путь вне каталога скриншотов")
	// ErrNotFound — файл не существует.
	ErrNotFound = errors.New("файл не найден")
)

// pageSizes — допустимые размеры страницы.
var pageSizes = map[int]bool{10: true, 20: true, 50: true, 100: true}

// imageExtensions — расширения, распознаваемые как скриншоты.
var imageExtensions = map[string]bool{".jpg": true, ".png": true, ".webp": true}

// Index — индекс скриншотов. Существование пользователя проверяет
// вызывающая сторона через резолвер; индекс работает только с путями.
type Index struct {
	paths  *steam.Paths
	logger *slog.Logger
}

// NewIndex создаёт индекс скриншотов.
func NewIndex(paths *steam.Paths, logger *slog.Logger) *Index {
	return &Index{
		paths:  paths,
		logger: logger.With(slog.String("component", "screenshots")),
	}
}

// List возвращает страницу имён файлов скриншотов пары
// (пользователь, приложение) и параметры пагинации.
//
// Отсутствующий каталог — не ошибка: total=0, пустой срез.
// Страница за последней валидной — пустой срез с корректным total.
func (idx *Index) List(id3 uint64, appID uint32, page, perPage int) ([]string, model.Pagination, error) {
	if !pageSizes[perPage] {
		return nil, model.Pagination{}, fmt.Errorf("per_page %d: %w", perPage, ErrInvalidPageSize)
	}
	if page < 0 {
		return nil, model.Pagination{}, fmt.Errorf("page %d: %w", page, ErrInvalidPage)
	}

	pagination := model.Pagination{Page: page, PerPage: perPage}

	names, err := idx.scan(id3, appID)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	pagination.Total = len(names)

	// Номер страницы приходит из query-параметра и может быть сколь
	// угодно большим: произведение page*perPage переполнило бы int.
	// Страница за последней валидной отсекается до умножения.
	if page > len(names)/perPage {
		return []string{}, pagination, nil
	}
	start := page * perPage
	if start >= len(names) {
		return []string{}, pagination, nil
	}
	end := start + perPage
	if end > len(names) {
		end = len(names)
	}
	return names[start:end], pagination, nil
}

// scan читает каталог скриншотов и возвращает имена файлов
// в зафиксированном порядке (по убыванию).
func (idx *Index) scan(id3 uint64, appID uint32) ([]string, error) {
	dir := idx.paths.ScreenshotsDir(id3, appID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("чтение каталога %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !imageExtensions[ext] {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Resolve возвращает проверенный абсолютный путь к файлу скриншота.
//
// Защита от обхода каталогов двухступенчатая: имя с разделителями
// пути или ".." отклоняется до обращения к ФС, затем канонизированный
// путь (с разыменованием симлинков) проверяется на принадлежность
// каталогу скриншотов пользователя.
func (idx *Index) Resolve(id3 uint64, appID uint32, filename string) (string, error) {
	return idx.resolveIn(idx.paths.ScreenshotsDir(id3, appID), filename)
}

// ResolveThumbnail возвращает проверенный путь к готовой миниатюре
// Steam (thumbnails/{имя}.jpg). Миниатюры Steam всегда JPEG.
func (idx *Index) ResolveThumbnail(id3 uint64, appID uint32, filename string) (string, error) {
	if err := checkFilename(filename); err != nil {
		return "", err
	}
	ext := filepath.Ext(filename)
	thumbName := strings.TrimSuffix(filename, ext) + ".jpg"
	return idx.resolveIn(idx.paths.ThumbnailsDir(id3, appID), thumbName)
}

// resolveIn канонизирует root/filename и проверяет принадлежность root.
func (idx *Index) resolveIn(root, filename string) (string, error) {
	if err := checkFilename(filename); err != nil {
		return "", err
	}

	canonicalRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", filename, ErrNotFound)
		}
		return "", fmt.Errorf("канонизация %s: %w", root, err)
	}

	candidate, err := filepath.EvalSymlinks(filepath.Join(canonicalRoot, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", filename, ErrNotFound)
		}
		return "", fmt.Errorf("канонизация %s: %w", filename, err)
	}

	if candidate != canonicalRoot && !strings.HasPrefix(candidate, canonicalRoot+string(os.PathSeparator)) {
		idx.logger.Warn("Отклонён путь вне каталога скриншотов",
			slog.String("filename", filename),
			slog.String("resolved", candidate),
		)
		return "", fmt.Errorf("%s: %w", filename, ErrForbidden)
	}

	info, err := os.Stat(candidate)
	if err != nil {
		return "", fmt.Errorf("%s: %w", filename, ErrNotFound)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s: %w", filename, ErrNotFound)
	}

	return candidate, nil
}

// checkFilename отклоняет имена с разделителями пути и "..".
func checkFilename(filename string) error {
	if filename == "" || filename == "." || filename == ".." {
		return fmt.Errorf("%q: %w", filename, ErrForbidden)
	}
	if strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("%q: %w", filename, ErrForbidden)
	}
	if filepath.Base(filename) != filename {
		return fmt.Errorf("%q: %w", filename, ErrForbidden)
	}
	return nil
}
