// Пакет thumbs — генерация миниатюр на лету для скриншотов,
// у которых нет готовой миниатюры Steam.
//
// Миниатюра масштабируется до фиксированной ширины с сохранением
// пропорций и кодируется в JPEG. Результаты кэшируются в памяти
// (LRU), ключ включает mtime исходного файла, поэтому изменённый
// скриншот перегенерируется автоматически.
package thumbs

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	// Скриншоты бывают и в webp; imaging сам этот декодер не регистрирует.
	_ "golang.org/x/image/webp"

	"github.com/bigkaa/screenshot-server/internal/api/middleware"
)

// cacheSize — максимум закэшированных миниатюр.
const cacheSize = 128

// jpegQuality — качество JPEG для миниатюр.
const jpegQuality = 85

// Generator — генератор миниатюр. Потокобезопасен.
type Generator struct {
	width  int
	logger *slog.Logger
	cache  *lru.Cache[string, []byte]
}

// New создаёт генератор миниатюр заданной ширины.
func New(width int, logger *slog.Logger) (*Generator, error) {
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("создание LRU-кэша миниатюр: %w", err)
	}
	return &Generator{
		width:  width,
		logger: logger.With(slog.String("component", "thumbs")),
		cache:  cache,
	}, nil
}

// FromFile возвращает JPEG-миниатюру изображения по указанному пути
// и mtime исходного файла (для Last-Modified).
func (g *Generator) FromFile(path string) ([]byte, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}
	modTime := info.ModTime()

	key := fmt.Sprintf("%s|%d|%d", path, modTime.UnixNano(), g.width)
	if data, ok := g.cache.Get(key); ok {
		return data, modTime, nil
	}

	data, err := g.generate(path)
	if err != nil {
		middleware.ThumbnailsGenerated.WithLabelValues("error").Inc()
		return nil, time.Time{}, err
	}
	middleware.ThumbnailsGenerated.WithLabelValues("ok").Inc()

	g.cache.Add(key, data)
	return data, modTime, nil
}

// generate читает изображение, масштабирует и кодирует в JPEG.
func (g *Generator) generate(path string) ([]byte, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("открытие изображения %s: %w", path, err)
	}

	// Высота 0 — сохранить пропорции.
	resized := imaging.Resize(img, g.width, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("кодирование миниатюры %s: %w", path, err)
	}

	g.logger.Debug("Сгенерирована миниатюра",
		slog.String("path", path),
		slog.Int("width", g.width),
		slog.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}
