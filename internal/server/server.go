// Пакет server — HTTP-сервер с graceful shutdown и сборка роутера
// публичного API скриншотов.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/screenshot-server/internal/api/handlers"
	"github.com/bigkaa/screenshot-server/internal/api/middleware"
)

// Server — HTTP-сервер с graceful shutdown по SIGINT/SIGTERM.
// Используется и бэкендом скриншотов, и control API супервизора.
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New создаёт HTTP-сервер на указанном адресе.
func New(addr string, handler http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

// Handlers — обработчики публичного API скриншотов.
type Handlers struct {
	Users       *handlers.UsersHandler
	Screenshots *handlers.ScreenshotsHandler
	Health      *handlers.HealthHandler
}

// NewRouter собирает chi-роутер публичного API: middleware (логи,
// метрики, CORS) и маршруты пользователей, скриншотов, health, metrics.
func NewRouter(h Handlers, corsOrigins []string, logger *slog.Logger) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/users", func(r chi.Router) {
		r.Get("/", h.Users.ListUsers)
		r.Get("/{id3}", h.Users.ListUserApps)
		r.Get("/{id3}/{appid}", h.Screenshots.ListScreenshots)
		// Статический сегмент /t/ регистрируем раньше файлового
		// маршрута: chi отдаёт приоритет статическим сегментам.
		r.Get("/{id3}/{appid}/t/{filename}", h.Screenshots.GetThumbnail)
		r.Get("/{id3}/{appid}/{filename}", h.Screenshots.GetScreenshot)
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с настроенным
// таймаутом.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
