// Пакет errors — ответы с ошибками в едином формате Identity Module:
// {"error": {"code": "...", "message": "..."}} плюс контекстные поля
// (username, подсказки клиенту). Все ответы с ошибками пишутся через WriteError.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/bigkaa/goartstore/identity-module/internal/service"
)

// Коды ошибок API.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeIDPUnavailable  = "IDP_UNAVAILABLE"
	CodeInternalError   = "INTERNAL_ERROR"

	// Коды входа
	CodeUserNotRegistered  = "USER_NOT_REGISTERED"
	CodeUserDisabled       = "USER_DISABLED"
	CodeKeycloakAuthFailed = "KEYCLOAK_AUTH_FAILED"
	CodeKeycloakDown       = "KEYCLOAK_UNAVAILABLE"
	CodeTokenRequestFailed = "TOKEN_REQUEST_FAILED"
	CodeCheckFailed        = "CHECK_FAILED"
)

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteErrorWith(w, statusCode, code, message, nil)
}

// WriteErrorWith записывает ответ ошибки с дополнительными полями верхнего
// уровня, например username или signup_endpoint.
func WriteErrorWith(w http.ResponseWriter, statusCode int, code, message string, fields map[string]any) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["error"] = errorDetail{Code: code, Message: message}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// FromService пишет ответ для ошибки сервисного слоя: статус и код
// определяются классом ошибки, сообщение берётся из *service.Error.
func FromService(w http.ResponseWriter, err error, fields map[string]any) {
	kind := service.Classify(err)
	WriteErrorWith(w, service.HTTPStatus(kind), CodeForKind(kind), Message(err), fields)
}

// CodeForKind возвращает код API для класса ошибки.
func CodeForKind(kind service.Kind) string {
	switch kind {
	case service.KindValidation, service.KindProviderRejected:
		return CodeValidationError
	case service.KindProviderUnavailable:
		return CodeIDPUnavailable
	case service.KindProviderConflict:
		return CodeConflict
	case service.KindNotProvisioned:
		return CodeNotFound
	case service.KindDisabled:
		return CodeForbidden
	default:
		return CodeInternalError
	}
}

// Message возвращает сообщение для клиента без деталей внутренних ошибок.
func Message(err error) string {
	var se *service.Error
	if stderrors.As(err, &se) {
		return se.Message
	}
	return "внутренняя ошибка"
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// IDPUnavailable — 503 Keycloak недоступен.
func IDPUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeIDPUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
