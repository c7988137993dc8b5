// handler.go — основной обработчик API Identity Module.
// Декодирует и проверяет запросы, делегирует работу сервисному слою.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/goartstore/identity-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/identity-module/internal/service"
)

// TokenValidator проверяет JWT Keycloak.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*middleware.AuthClaims, error)
}

// APIHandler — основной обработчик API Identity Module.
type APIHandler struct {
	health       *HealthHandler
	login        *service.LoginService
	provisioning *service.ProvisioningService
	roles        *service.RoleService
	users        *service.UserService
	tokens       TokenValidator
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// tokens может быть nil, тогда POST /auth/validate отвечает 401.
func NewAPIHandler(
	health *HealthHandler,
	login *service.LoginService,
	provisioning *service.ProvisioningService,
	roles *service.RoleService,
	users *service.UserService,
	tokens TokenValidator,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:       health,
		login:        login,
		provisioning: provisioning,
		roles:        roles,
		users:        users,
		tokens:       tokens,
		validate:     newValidator(),
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// newValidator создаёт validator, который называет поля по json-тегам.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode читает JSON-тело и проверяет его тегами validate.
// Ошибка содержит готовое сообщение для клиента.
func (h *APIHandler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("некорректный JSON: %w", err)
	}
	return h.check(dst)
}

// check проверяет структуру и сворачивает ошибки validator в одно сообщение.
// Отсутствующие поля перечисляются как "missing field: a, b".
func (h *APIHandler) check(dst any) error {
	err := h.validate.Struct(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing field: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid field: "+strings.Join(invalid, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}

// paginationDefaults нормализует параметры пагинации из query.
func paginationDefaults(r *http.Request) (limit, offset int) {
	limit, offset = 100, 0

	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = min(max(v, 1), 1000)
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		offset = max(v, 0)
	}
	return limit, offset
}
