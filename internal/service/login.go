package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/oidc"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
)

// TokenIssuer — token endpoint realm'а для конечных пользователей.
type TokenIssuer interface {
	PasswordGrant(ctx context.Context, username, password string) (*oidc.TokenBundle, error)
	Refresh(ctx context.Context, refreshToken string) (*oidc.TokenBundle, error)
	Discover(ctx context.Context) (*oidc.Discovery, error)
}

// LoginResult — токены Keycloak и локальная запись пользователя.
type LoginResult struct {
	Token *oidc.TokenBundle
	User  *model.User
}

// LoginService реализует вход по политике "сначала локальная БД":
// Keycloak вызывается только для существующего и включённого пользователя.
type LoginService struct {
	users          repository.UserRepository
	tokens         TokenIssuer
	signupEndpoint string
	logger         *slog.Logger
}

// NewLoginService создаёт сервис входа.
func NewLoginService(users repository.UserRepository, tokens TokenIssuer, signupEndpoint string, logger *slog.Logger) *LoginService {
	return &LoginService{
		users:          users,
		tokens:         tokens,
		signupEndpoint: signupEndpoint,
		logger:         logger.With(slog.String("component", "login_service")),
	}
}

// SignupEndpoint возвращает endpoint регистрации для подсказок клиенту.
func (s *LoginService) SignupEndpoint() string {
	return s.signupEndpoint
}

// Login проверяет локальную запись и затем учётные данные в Keycloak.
func (s *LoginService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		loginTotal.WithLabelValues("invalid").Inc()
		return nil, validationError("username и password обязательны")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("Вход незарегистрированного пользователя", slog.String("username", username))
			loginTotal.WithLabelValues("not_registered").Inc()
			return nil, newError(KindNotProvisioned, "пользователь не зарегистрирован", err)
		}
		loginTotal.WithLabelValues("error").Inc()
		return nil, newError(KindInternal, "ошибка чтения локальной записи", err)
	}

	if !user.Enabled {
		s.logger.Info("Вход отключённого пользователя", slog.String("username", username))
		loginTotal.WithLabelValues("disabled").Inc()
		return nil, newError(KindDisabled, "учётная запись отключена", nil)
	}

	token, err := s.tokens.PasswordGrant(ctx, username, password)
	if err != nil {
		serr := classified("Keycloak отклонил вход", err)
		switch serr.Kind {
		case KindProviderRejected:
			serr.Message = "неверное имя пользователя или пароль"
		case KindProviderUnavailable:
			serr.Message = "Keycloak недоступен"
		}
		s.logger.Warn("Вход не выполнен",
			slog.String("username", username),
			slog.String("kind", string(serr.Kind)),
			slog.String("error", err.Error()),
		)
		loginTotal.WithLabelValues(loginResultLabel(serr.Kind)).Inc()
		return nil, serr
	}

	s.logger.Info("Пользователь вошёл", slog.String("username", username), slog.Int64("user_seq", user.ID))
	loginTotal.WithLabelValues("success").Inc()
	return &LoginResult{Token: token, User: user}, nil
}

// Refresh обменивает refresh token на новые токены.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (*oidc.TokenBundle, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, validationError("refresh_token обязателен")
	}
	token, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, classified("не удалось обновить токен", err)
	}
	return token, nil
}

// CheckUser сообщает, зарегистрирован ли пользователь локально.
func (s *LoginService) CheckUser(ctx context.Context, username string) (*model.User, bool, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, newError(KindInternal, "ошибка проверки пользователя", err)
	}
	return user, true, nil
}

// TestConnection выполняет OIDC discovery realm'а.
func (s *LoginService) TestConnection(ctx context.Context) (*oidc.Discovery, error) {
	d, err := s.tokens.Discover(ctx)
	if err != nil {
		return nil, newError(KindProviderUnavailable, "Keycloak недоступен", err)
	}
	return d, nil
}

func loginResultLabel(kind Kind) string {
	switch kind {
	case KindProviderRejected:
		return "rejected"
	case KindProviderUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}
