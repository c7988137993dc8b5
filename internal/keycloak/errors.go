package keycloak

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrTransport оборачивает сетевые ошибки: Keycloak не ответил.
	ErrTransport = errors.New("keycloak недоступен")
	// ErrUserIDLookup: пользователь создан, но его ID не найден поиском по username.
	ErrUserIDLookup = errors.New("user id lookup failed")
	// ErrUserNotFound: поиск по username не дал точного совпадения.
	ErrUserNotFound = errors.New("пользователь не найден в keycloak")
)

// maxErrorBody ограничивает тело ответа, сохраняемое в APIError.
const maxErrorBody = 1024

// APIError описывает ответ Keycloak с кодом вне 2xx.
type APIError struct {
	// Op — имя операции клиента (create_user, get_role и т.д.)
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("keycloak %s: статус %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("keycloak %s: статус %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsConflict сообщает, что ресурс уже существует. Основной признак 409,
// но некоторые версии Keycloak отвечают 400 с "exists" в теле.
func (e *APIError) IsConflict() bool {
	if e.StatusCode == http.StatusConflict {
		return true
	}
	return e.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Body), "exists")
}

// IsNotFound сообщает, что ресурс отсутствует.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func newAPIError(op string, status int, body []byte) *APIError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &APIError{Op: op, StatusCode: status, Body: strings.TrimSpace(string(body))}
}

// IsConflict проверяет, что err содержит APIError о существующем ресурсе.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsConflict()
}

// IsNotFound проверяет, что err содержит APIError со статусом 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsNotFound()
}
