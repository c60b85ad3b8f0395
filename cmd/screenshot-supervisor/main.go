// Точка входа супервизора — control plane дочернего сервера скриншотов.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/bigkaa/screenshot-server/internal/config"
	"github.com/bigkaa/screenshot-server/internal/control"
	"github.com/bigkaa/screenshot-server/internal/server"
	"github.com/bigkaa/screenshot-server/internal/settings"
	"github.com/bigkaa/screenshot-server/internal/supervisor"
)

func main() {
	_ = godotenv.Load()

	// Загрузка конфигурации из переменных окружения
	cfg, err := config.LoadSupervisor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Супервизор запускается",
		slog.String("version", config.Version),
		slog.String("control_addr", cfg.ControlAddr),
		slog.String("backend_bin", cfg.BackendBin),
		slog.String("settings_dir", cfg.SettingsDir),
	)

	// --- Инициализация компонентов ---

	// 1. Хранилище настроек
	store := settings.New(cfg.SettingsDir, logger)
	store.Read()

	// Порт по умолчанию фиксируем на диске при первом запуске,
	// чтобы UI сразу видел действующее значение.
	if !store.Has(settings.KeyPort) {
		store.Set(settings.KeyPort, config.DefaultPort)
		if err := store.Commit(); err != nil {
			logger.Warn("Не удалось сохранить настройки по умолчанию",
				slog.String("error", err.Error()),
			)
		}
	}

	// 2. Супервизор дочернего процесса
	sup := supervisor.New(cfg, store, logger)
	// Close останавливает дочерний сервер: он не должен переживать
	// свой control plane.
	defer sup.Close()

	// 3. Control API
	handler := control.NewHandler(sup, logger)
	router := control.NewRouter(handler, logger)

	srv := server.New(cfg.ControlAddr, router, cfg.ShutdownTimeout, logger)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка control API", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Супервизор остановлен")
}
