// Точка входа HTTP-сервера скриншотов Steam.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/bigkaa/screenshot-server/internal/api/handlers"
	"github.com/bigkaa/screenshot-server/internal/config"
	"github.com/bigkaa/screenshot-server/internal/screenshots"
	"github.com/bigkaa/screenshot-server/internal/server"
	"github.com/bigkaa/screenshot-server/internal/steam"
	"github.com/bigkaa/screenshot-server/internal/thumbs"
)

func main() {
	// .env удобен при локальной разработке; отсутствие файла — норма.
	_ = godotenv.Load()

	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Сервер скриншотов запускается",
		slog.String("version", config.Version),
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("steam_root", cfg.SteamRoot),
	)

	// --- Инициализация компонентов ---

	// 1. Пути каталога Steam
	paths, err := steam.NewPaths(cfg.SteamRoot)
	if err != nil {
		logger.Error("Каталог Steam недоступен",
			slog.String("steam_root", cfg.SteamRoot),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 2. Резолвер метаданных (пользователи, каталог приложений, ярлыки)
	resolver := steam.NewResolver(paths, logger)
	if err := resolver.Load(); err != nil {
		logger.Error("Ошибка загрузки метаданных Steam", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Индекс скриншотов
	idx := screenshots.NewIndex(paths, logger)

	// 4. Генератор миниатюр
	gen, err := thumbs.New(cfg.ThumbWidth, logger)
	if err != nil {
		logger.Error("Ошибка инициализации генератора миниатюр", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Handlers и роутер
	h := server.Handlers{
		Users:       handlers.NewUsersHandler(resolver),
		Screenshots: handlers.NewScreenshotsHandler(resolver, idx, gen),
		Health:      handlers.NewHealthHandler(paths.Root(), resolver),
	}
	router := server.NewRouter(h, cfg.CORSOrigins, logger)

	// 6. Запуск HTTP-сервера
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	srv := server.New(addr, router, cfg.ShutdownTimeout, logger)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Сервер скриншотов остановлен")
}
