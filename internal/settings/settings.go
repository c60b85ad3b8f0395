// Пакет settings — долговременные настройки оператора (порт,
// флаг принятого предупреждения).
//
// Плоский JSON-документ ключ → значение в каталоге настроек.
// Read никогда не мешает запуску: отсутствующий или повреждённый
// файл молча даёт значения по умолчанию. Set меняет только память;
// долговечность — явный Commit (атомарная запись через renameio:
// temp → fsync → rename).
package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// fileName — имя файла настроек в каталоге настроек.
const fileName = "settings.json"

// Ключи настроек супервизора.
const (
	// KeyPort — порт дочернего HTTP-сервера.
	KeyPort = "PORT"
	// KeyAcceptedWarning — принято ли одноразовое предупреждение.
	KeyAcceptedWarning = "ACCEPTED_WARNING"
)

// Store — хранилище настроек. Потокобезопасен.
// Конструируется явно и передаётся супервизору при инициализации —
// не глобальный синглтон, чтобы порядок инициализации и изоляция
// тестов оставались явными.
type Store struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	values map[string]any
}

// New создаёт хранилище с файлом settings.json в указанном каталоге.
func New(dir string, logger *slog.Logger) *Store {
	return &Store{
		path:   filepath.Join(dir, fileName),
		logger: logger.With(slog.String("component", "settings")),
		values: make(map[string]any),
	}
}

// Read загружает настройки с диска в память. Отсутствие или порча
// файла не являются ошибкой: хранилище остаётся с дефолтами.
func (s *Store) Read() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Файл настроек недоступен, используем значения по умолчанию",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}
		s.values = make(map[string]any)
		return
	}

	values := make(map[string]any)
	if err := json.Unmarshal(data, &values); err != nil {
		s.logger.Warn("Файл настроек повреждён, используем значения по умолчанию",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		s.values = make(map[string]any)
		return
	}
	s.values = values
}

// Commit атомарно записывает текущее состояние на диск.
func (s *Store) Commit() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.values, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("сериализация настроек: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("создание каталога настроек: %w", err)
	}

	// renameio: временный файл, fsync, атомарный rename.
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("запись настроек: %w", err)
	}
	return nil
}

// Set записывает значение ключа в память. Для долговечности
// требуется явный Commit.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// GetInt возвращает целочисленное значение ключа либо значение
// по умолчанию. JSON-числа приходят как float64.
func (s *Store) GetInt(key string, def int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch v := s.values[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// GetBool возвращает булево значение ключа либо значение по умолчанию.
func (s *Store) GetBool(key string, def bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.values[key].(bool); ok {
		return v
	}
	return def
}

// Has возвращает true, если ключ присутствует в хранилище.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok
}
