// Точка входа Identity Module — фасада учётных записей над Keycloak.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт клиенты Keycloak, сервисный слой и API handlers,
// запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/goartstore/identity-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/identity-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/identity-module/internal/config"
	"github.com/bigkaa/goartstore/identity-module/internal/database"
	"github.com/bigkaa/goartstore/identity-module/internal/keycloak"
	"github.com/bigkaa/goartstore/identity-module/internal/oidc"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
	"github.com/bigkaa/goartstore/identity-module/internal/server"
	"github.com/bigkaa/goartstore/identity-module/internal/service"
)

const readinessTimeout = 5 * time.Second

func main() {
	// 0. Необязательный .env для локального запуска
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Ошибка чтения .env", slog.String("error", err.Error()))
	}

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Identity Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. HTTP-клиент с кастомным CA Keycloak
	httpClient := &http.Client{}
	if cfg.KeycloakCACertPath != "" {
		httpClient, err = buildHTTPClientWithCA(cfg.KeycloakCACertPath)
		if err != nil {
			logger.Error("Ошибка загрузки CA-сертификата",
				slog.String("path", cfg.KeycloakCACertPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.KeycloakCACertPath))
	}

	// 6. Клиенты Keycloak: Admin REST API и token endpoint realm'а
	kcClient := keycloak.New(keycloak.Config{
		BaseURL:         cfg.KeycloakURL,
		Realm:           cfg.KeycloakRealm,
		AdminRealm:      cfg.KeycloakAdminRealm,
		AdminClientID:   cfg.KeycloakAdminClientID,
		AdminUsername:   cfg.KeycloakAdminUsername,
		AdminPassword:   cfg.KeycloakAdminPassword,
		AccountClientID: cfg.KeycloakAccountClientID,
		Timeout:         cfg.KeycloakTimeout,
		Retries:         cfg.KeycloakRetries,
		RetryBackoff:    cfg.KeycloakRetryBackoff,
	}, httpClient, logger)

	oidcClient := oidc.New(oidc.Config{
		KeycloakURL:  cfg.KeycloakURL,
		Realm:        cfg.KeycloakRealm,
		ClientID:     cfg.KeycloakClientID,
		ClientSecret: cfg.KeycloakClientSecret,
		Scopes:       cfg.KeycloakLoginScopes,
		Timeout:      cfg.KeycloakTimeout,
	}, httpClient, logger)

	logger.Info("Keycloak клиенты созданы",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", kcClient.Realm()),
		slog.String("issuer", oidcClient.RealmURL()),
		slog.Duration("timeout", cfg.KeycloakTimeout),
		slog.Int("retries", cfg.KeycloakRetries),
	)

	// 7. Repositories
	userRepo := repository.NewUserRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 8. Services
	provisioningSvc := service.NewProvisioningService(kcClient, userRepo, logger)
	loginSvc := service.NewLoginService(userRepo, oidcClient, cfg.SignupEndpoint, logger)
	roleSvc := service.NewRoleService(kcClient, logger)
	userSvc := service.NewUserService(userRepo, txRunner, logger)

	// 9. JWT — проверка токенов и защита CRUD локальных пользователей
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		httpClient,
		cfg.JWTIssuer,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
		slog.String("admin_role", cfg.AdminRole),
	)

	// 10. Readiness checkers (PostgreSQL + Keycloak) и API handler
	pgChecker := database.NewReadinessChecker(pool)
	kcChecker := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, httpClient, readinessTimeout)
	healthHandler := handlers.NewHealthHandler(pgChecker, kcChecker)

	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		loginSvc,
		provisioningSvc,
		roleSvc,
		userSvc,
		jwtAuth,
		logger,
	)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + Keycloak)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:       "identity-module",
		Group:           cfg.DephealthGroup,
		DB:              pgDB,
		PostgresURL:     cfg.DatabaseURL(),
		KeycloakJWKSURL: cfg.JWTJWKSURL,
		CheckInterval:   cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	logger.Info("Identity Module остановлен")
}

// buildHTTPClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func buildHTTPClientWithCA(caCertPath string) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}
