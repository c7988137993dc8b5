// Пакет config загружает и валидирует конфигурацию Identity Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Identity Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak ---

	// Базовый URL Keycloak без trailing slash
	KeycloakURL string
	// Realm, в котором живут пользователи, роли и группы
	KeycloakRealm string
	// Realm администратора (обычно master)
	KeycloakAdminRealm string
	// Public client для password grant администратора (обычно admin-cli)
	KeycloakAdminClientID string
	// Учётные данные администратора Keycloak
	KeycloakAdminUsername string
	KeycloakAdminPassword string
	// Client realm'а для входа конечных пользователей
	KeycloakClientID     string
	KeycloakClientSecret string
	// Client, чьи роли попадают в снимок ролей пользователя
	KeycloakAccountClientID string
	// Scopes для password grant пользователя
	KeycloakLoginScopes []string
	// Таймаут одного вызова Keycloak
	KeycloakTimeout time.Duration
	// Количество повторов при сетевых ошибках (0 отключает повторы)
	KeycloakRetries int
	// Пауза перед повтором
	KeycloakRetryBackoff time.Duration
	// Путь к CA-сертификату Keycloak (опционально)
	KeycloakCACertPath string

	// --- JWT ---

	// Issuer JWT (вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Realm-роль, необходимая для управления локальными пользователями
	AdminRole string

	// --- Прочее ---

	// Endpoint регистрации, который возвращается в подсказке при входе
	SignupEndpoint string
	// Группа topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("IM_PORT", 8010)
	if err != nil {
		return nil, fmt.Errorf("IM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("IM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("IM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("IM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("IM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("IM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("IM_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("IM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("IM_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("IM_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("IM_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("IM_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("IM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("IM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Keycloak ---

	if cfg.KeycloakURL, err = getEnvRequired("IM_KEYCLOAK_URL"); err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	cfg.KeycloakRealm = getEnvDefault("IM_KEYCLOAK_REALM", "usertest")
	cfg.KeycloakAdminRealm = getEnvDefault("IM_KEYCLOAK_ADMIN_REALM", "master")
	cfg.KeycloakAdminClientID = getEnvDefault("IM_KEYCLOAK_ADMIN_CLIENT_ID", "admin-cli")

	if cfg.KeycloakAdminUsername, err = getEnvRequired("IM_KEYCLOAK_ADMIN_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.KeycloakAdminPassword, err = getEnvRequired("IM_KEYCLOAK_ADMIN_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.KeycloakClientID, err = getEnvRequired("IM_KEYCLOAK_CLIENT_ID"); err != nil {
		return nil, err
	}
	// Секрет может быть пустым для public client
	cfg.KeycloakClientSecret = os.Getenv("IM_KEYCLOAK_CLIENT_SECRET")

	cfg.KeycloakAccountClientID = getEnvDefault("IM_KEYCLOAK_ACCOUNT_CLIENT_ID", "account")
	cfg.KeycloakLoginScopes = parseCSV(getEnvDefault("IM_KEYCLOAK_LOGIN_SCOPES", "openid,profile,email"))

	cfg.KeycloakTimeout, err = getEnvDuration("IM_KEYCLOAK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_KEYCLOAK_TIMEOUT: %w", err)
	}
	if cfg.KeycloakTimeout <= 0 {
		return nil, fmt.Errorf("IM_KEYCLOAK_TIMEOUT: таймаут должен быть положительным")
	}

	cfg.KeycloakRetries, err = getEnvInt("IM_KEYCLOAK_RETRIES", 0)
	if err != nil {
		return nil, fmt.Errorf("IM_KEYCLOAK_RETRIES: %w", err)
	}
	if cfg.KeycloakRetries < 0 || cfg.KeycloakRetries > 5 {
		return nil, fmt.Errorf("IM_KEYCLOAK_RETRIES: значение %d вне допустимого диапазона 0-5", cfg.KeycloakRetries)
	}

	cfg.KeycloakRetryBackoff, err = getEnvDuration("IM_KEYCLOAK_RETRY_BACKOFF", 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("IM_KEYCLOAK_RETRY_BACKOFF: %w", err)
	}

	cfg.KeycloakCACertPath = getEnvDefault("IM_KEYCLOAK_CA_CERT_PATH", "")

	// --- JWT ---

	cfg.JWTIssuer = getEnvDefault("IM_JWT_ISSUER", cfg.RealmURL())
	cfg.JWTJWKSURL = getEnvDefault("IM_JWT_JWKS_URL", cfg.RealmURL()+"/protocol/openid-connect/certs")
	if _, err := url.Parse(cfg.JWTJWKSURL); err != nil {
		return nil, fmt.Errorf("IM_JWT_JWKS_URL: некорректный URL: %w", err)
	}

	cfg.JWTLeeway, err = getEnvDuration("IM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("IM_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.AdminRole = getEnvDefault("IM_ADMIN_ROLE", "admin")

	// --- Прочее ---

	cfg.SignupEndpoint = getEnvDefault("IM_SIGNUP_ENDPOINT", "/api/v1/users/create")
	cfg.DephealthGroup = getEnvDefault("IM_DEPHEALTH_GROUP", "goartstore")
	cfg.DephealthCheckInterval, err = getEnvDuration("IM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("IM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// RealmURL возвращает URL realm'а пользователей (он же issuer).
func (c *Config) RealmURL() string {
	return fmt.Sprintf("%s/realms/%s", c.KeycloakURL, c.KeycloakRealm)
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL в формате postgres://.
// Используется для лейблов topologymetrics, пароль не включается.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(c.DBUser),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

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

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
