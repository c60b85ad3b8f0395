// Пакет config — загрузка и валидация конфигурации из переменных
// окружения: общая часть (логирование), конфигурация HTTP-бэкенда
// и конфигурация супервизора.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/screenshot-server/internal/steam"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Границы допустимого диапазона порта дочернего сервера.
const (
	PortMin = 1024
	PortMax = 65535
)

// DefaultPort — порт дочернего сервера по умолчанию.
const DefaultPort = 5158

// Config содержит параметры HTTP-бэкенда (screenshot-server).
type Config struct {
	// Адрес прослушивания (HOST, по умолчанию 127.0.0.1;
	// супервизор передаёт 0.0.0.0)
	Host string
	// Порт HTTP-сервера (PORT, диапазон 1024-65535)
	Port int
	// Корневой каталог Steam (STEAM_ROOT)
	SteamRoot string
	// Разрешённые CORS origins (SSV_CORS_ORIGINS, через запятую)
	CORSOrigins []string
	// Ширина генерируемых миниатюр в пикселях (SSV_THUMB_WIDTH)
	ThumbWidth int
	// Уровень логирования (SSV_LOG_LEVEL)
	LogLevel slog.Level
	// Формат логов: json или text (SSV_LOG_FORMAT)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера (SSV_SHUTDOWN_TIMEOUT)
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию бэкенда из переменных окружения.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Host = getEnvDefault("HOST", "127.0.0.1")

	port, err := getEnvInt("PORT", DefaultPort)
	if err != nil {
		return nil, fmt.Errorf("PORT: %w", err)
	}
	if port < PortMin || port > PortMax {
		return nil, fmt.Errorf("PORT: значение %d вне допустимого диапазона %d-%d", port, PortMin, PortMax)
	}
	cfg.Port = port

	cfg.SteamRoot = getEnvDefault("STEAM_ROOT", steam.DefaultRoot())

	origins := getEnvDefault("SSV_CORS_ORIGINS", "*")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	cfg.ThumbWidth, err = getEnvInt("SSV_THUMB_WIDTH", 512)
	if err != nil {
		return nil, fmt.Errorf("SSV_THUMB_WIDTH: %w", err)
	}
	if cfg.ThumbWidth <= 0 {
		return nil, fmt.Errorf("SSV_THUMB_WIDTH: значение должно быть положительным")
	}

	if err := loadLogSettings(&cfg.LogLevel, &cfg.LogFormat); err != nil {
		return nil, err
	}

	cfg.ShutdownTimeout, err = getEnvDuration("SSV_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SSV_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SupervisorConfig содержит параметры супервизора (screenshot-supervisor).
type SupervisorConfig struct {
	// Адрес control API (SSV_CONTROL_ADDR, только loopback)
	ControlAddr string
	// Каталог файла настроек (SSV_SETTINGS_DIR)
	SettingsDir string
	// Путь к бинарнику бэкенда (SSV_BACKEND_BIN)
	BackendBin string
	// Корневой каталог Steam, передаётся дочернему процессу
	SteamRoot string
	// Адрес прослушивания дочернего сервера (SSV_HOST)
	ChildHost string
	// Максимальное ожидание готовности дочернего сервера (SSV_START_TIMEOUT)
	StartTimeout time.Duration
	// Ожидание завершения после SIGTERM и после SIGKILL (SSV_STOP_TIMEOUT)
	StopTimeout time.Duration
	// Уровень логирования (SSV_LOG_LEVEL)
	LogLevel slog.Level
	// Формат логов (SSV_LOG_FORMAT)
	LogFormat string
	// Таймаут graceful shutdown control API (SSV_SHUTDOWN_TIMEOUT)
	ShutdownTimeout time.Duration
}

// LoadSupervisor загружает конфигурацию супервизора из переменных
// окружения.
func LoadSupervisor() (*SupervisorConfig, error) {
	cfg := &SupervisorConfig{}
	var err error

	cfg.ControlAddr = getEnvDefault("SSV_CONTROL_ADDR", "127.0.0.1:5157")

	cfg.SettingsDir = getEnvDefault("SSV_SETTINGS_DIR", "")
	if cfg.SettingsDir == "" {
		base, cerr := os.UserConfigDir()
		if cerr != nil {
			base = "."
		}
		cfg.SettingsDir = filepath.Join(base, "screenshot-server")
	}

	cfg.BackendBin = getEnvDefault("SSV_BACKEND_BIN", "")
	if cfg.BackendBin == "" {
		exe, eerr := os.Executable()
		if eerr != nil {
			return nil, fmt.Errorf("SSV_BACKEND_BIN не задан и путь к исполняемому файлу недоступен: %w", eerr)
		}
		cfg.BackendBin = filepath.Join(filepath.Dir(exe), "screenshot-server")
	}

	cfg.SteamRoot = getEnvDefault("STEAM_ROOT", steam.DefaultRoot())
	cfg.ChildHost = getEnvDefault("SSV_HOST", "0.0.0.0")

	cfg.StartTimeout, err = getEnvDuration("SSV_START_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SSV_START_TIMEOUT: %w", err)
	}
	cfg.StopTimeout, err = getEnvDuration("SSV_STOP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SSV_STOP_TIMEOUT: %w", err)
	}

	if err := loadLogSettings(&cfg.LogLevel, &cfg.LogFormat); err != nil {
		return nil, err
	}

	cfg.ShutdownTimeout, err = getEnvDuration("SSV_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SSV_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер.
func SetupLogger(level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// loadLogSettings читает общие настройки логирования.
func loadLogSettings(level *slog.Level, format *string) error {
	var err error
	*level, err = parseLogLevel(getEnvDefault("SSV_LOG_LEVEL", "info"))
	if err != nil {
		return fmt.Errorf("SSV_LOG_LEVEL: %w", err)
	}

	*format = getEnvDefault("SSV_LOG_FORMAT", "json")
	if *format != "json" && *format != "text" {
		return fmt.Errorf("SSV_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", *format)
	}
	return nil
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 10s, 1m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
