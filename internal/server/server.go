// Пакет server — HTTP-сервер Data Audit System с graceful shutdown.
// Без TLS — терминация на reverse proxy перед сервисом.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/nambgit/archetype-data-audit/internal/api/handlers"
	"github.com/nambgit/archetype-data-audit/internal/api/middleware"
	"github.com/nambgit/archetype-data-audit/internal/config"
	"github.com/nambgit/archetype-data-audit/internal/ldapauth"
)

// authRealm — realm Basic-аутентификации операторских endpoint'ов.
const authRealm = "Audit System"

// Handlers — набор обработчиков, монтируемых на роутер.
type Handlers struct {
	Health    *handlers.HealthHandler
	Dashboard *handlers.DashboardHandler
	Files     *handlers.FilesHandler
}

// Server — HTTP-сервер Data Audit System.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// Служебные endpoints (/healthz, /readyz, /metrics) доступны без
// аутентификации; операторские — за Basic Auth через verifier.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, verifier ldapauth.Verifier) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Служебные endpoints — без аутентификации
	router.Get("/healthz", h.Health.HealthLive)
	router.Get("/readyz", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	// Операторские endpoints — за Basic Auth
	router.Group(func(r chi.Router) {
		r.Use(middleware.BasicAuth(verifier, authRealm, logger))

		r.Get("/", h.Dashboard.GetDashboard)
		r.Get("/download/{id}", h.Files.HandleDownload)
		r.Get("/restore/{id}", h.Files.HandleRestore)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
