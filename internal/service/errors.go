package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bigkaa/goartstore/identity-module/internal/keycloak"
	"github.com/bigkaa/goartstore/identity-module/internal/oidc"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
)

// Kind — класс ошибки, общий для всех рабочих процессов.
// Значение используется как стабильный код ошибки в ответах API.
type Kind string

const (
	KindValidation          Kind = "ValidationError"
	KindProviderUnavailable Kind = "ProviderUnavailable"
	KindProviderConflict    Kind = "ProviderConflict"
	KindProviderRejected    Kind = "ProviderRejected"
	KindNotProvisioned      Kind = "NotProvisioned"
	KindDisabled            Kind = "Disabled"
	KindPartialSyncWarning  Kind = "PartialSyncWarning"
	KindInternal            Kind = "Internal"
)

// Error — ошибка сервисного слоя с классом и сообщением для клиента.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func validationError(msg string) *Error {
	return newError(KindValidation, msg, nil)
}

// classified оборачивает err в *Error с классом из Classify.
func classified(msg string, err error) *Error {
	return newError(Classify(err), msg, err)
}

// Classify определяет класс ошибки. Сначала по типу и HTTP-статусу,
// текст сообщения проверяется только если тип ничего не сказал.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	switch {
	case errors.Is(err, keycloak.ErrUserIDLookup):
		return KindInternal
	case errors.Is(err, keycloak.ErrUserNotFound), errors.Is(err, repository.ErrNotFound):
		return KindNotProvisioned
	case errors.Is(err, repository.ErrConflict):
		return KindProviderConflict
	case errors.Is(err, keycloak.ErrTransport), errors.Is(err, oidc.ErrTransport),
		errors.Is(err, context.DeadlineExceeded):
		return KindProviderUnavailable
	}

	var apiErr *keycloak.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsConflict() {
			return KindProviderConflict
		}
		if kind, ok := kindForStatus(apiErr.StatusCode); ok {
			return kind
		}
	}

	var tokenErr *oidc.TokenError
	if errors.As(err, &tokenErr) {
		if kind, ok := kindForStatus(tokenErr.StatusCode); ok {
			return kind
		}
	}

	return classifyMessage(err.Error())
}

func kindForStatus(status int) (Kind, bool) {
	switch {
	case status >= 500:
		return KindProviderUnavailable, true
	case status >= 400:
		return KindProviderRejected, true
	default:
		return "", false
	}
}

// classifyMessage — запасной разбор по тексту ошибки провайдера.
func classifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "already exists"), strings.Contains(msg, "exists"):
		return KindProviderConflict
	case strings.Contains(msg, "not found"):
		return KindProviderRejected
	case strings.Contains(msg, "invalid"):
		return KindValidation
	default:
		return KindInternal
	}
}

// HTTPStatus возвращает HTTP-статус для класса ошибки.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindProviderRejected:
		return http.StatusBadRequest
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case KindProviderConflict:
		return http.StatusConflict
	case KindNotProvisioned:
		return http.StatusNotFound
	case KindDisabled:
		return http.StatusForbidden
	case KindPartialSyncWarning:
		return http.StatusCreated
	default:
		return http.StatusInternalServerError
	}
}
