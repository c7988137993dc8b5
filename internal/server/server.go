// Пакет server — HTTP-сервер Identity Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/identity-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/identity-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/identity-module/internal/config"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/rbac"
)

// Server — HTTP-сервер Identity Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами и middleware.
// jwtAuth может быть nil: тогда CRUD локальных пользователей открыт.
func New(cfg *config.Config, logger *slog.Logger, h *handlers.APIHandler, jwtAuth *middleware.JWTAuth) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, h, jwtAuth, cfg.AdminRole),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты. Health и metrics проверяются Kubernetes
// напрямую и не требуют JWT.
func NewRouter(logger *slog.Logger, h *handlers.APIHandler, jwtAuth *middleware.JWTAuth, adminRole string) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/refresh", h.RefreshToken)
			r.Post("/validate", h.ValidateToken)
			r.Get("/user-check/{username}", h.CheckUser)
			r.Get("/test-connection", h.TestConnection)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/create", h.CreateUser)
			r.Post("/create-pulsar-system", h.CreatePulsarSystemUser)
			r.Get("/admin/health", h.UsersAdminHealth)

			r.Group(func(r chi.Router) {
				if jwtAuth != nil {
					r.Use(jwtAuth.Middleware())
					r.Use(middleware.RequireRole(adminRole))
				}
				r.Get("/", h.ListUsers)
				r.Post("/", h.CreateLocalUser)
				r.Get("/{id}", h.GetUser)
				r.Put("/{id}", h.UpdateLocalUser)
				r.Delete("/{id}", h.DeleteLocalUser)
			})
		})

		r.Route("/roles", func(r chi.Router) {
			r.Post("/create", h.CreateRole)
			r.Post("/create-defaults", h.CreateDefaultRoles)
			r.Post("/assign", h.AssignRoles)
			r.Get("/user/{username}", h.GetUserRoles)
			r.Get("/admin/health", h.RolesAdminHealth)
		})

		r.Get("/public/hello", h.PublicHello)

		// Ролевые endpoints имеют смысл только с проверкой JWT.
		if jwtAuth != nil {
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware())

				r.Get("/protected/info", h.ProtectedInfo)
				r.With(middleware.RequireRole(rbac.RealmRoleUser)).Get("/user/profile", h.UserProfile)
				r.With(middleware.RequireRole(rbac.RealmRoleUser)).Get("/user/settings", h.UserSettings)
				r.With(middleware.RequireRole(rbac.RealmRoleManager)).Get("/manager/reports", h.ManagerReports)
				r.With(middleware.RequireRole(adminRole)).Get("/admin/dashboard", h.AdminDashboard)
			})
		}
	})

	return router
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
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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
