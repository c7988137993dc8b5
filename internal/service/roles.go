package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/keycloak"
)

// RoleManager — операции Keycloak для управления ролями.
type RoleManager interface {
	FetchAdminToken(ctx context.Context) (string, error)
	FindUserID(ctx context.Context, token, username string) (string, error)
	CreateRole(ctx context.Context, token, name, description string) (*model.RoleDescriptor, error)
	CreateDefaultRoleSet(ctx context.Context, token string)
	AssignRolesToUser(ctx context.Context, token, userID string, names []string) ([]string, error)
	ReplaceUserRealmRoles(ctx context.Context, token, userID string, names []string) ([]string, error)
	GetUserRoleSnapshot(ctx context.Context, token, userID string) *model.UserRoleSnapshot
}

// RoleService управляет realm-ролями и ролями пользователей в Keycloak.
// Роли локально не хранятся: каждое обращение заново разрешает имена.
type RoleService struct {
	kc     RoleManager
	logger *slog.Logger
}

// NewRoleService создаёт сервис ролей.
func NewRoleService(kc RoleManager, logger *slog.Logger) *RoleService {
	return &RoleService{
		kc:     kc,
		logger: logger.With(slog.String("component", "role_service")),
	}
}

// CreateRole создаёт realm-роль.
func (s *RoleService) CreateRole(ctx context.Context, name, description string) (*model.RoleDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("roleName обязателен")
	}

	token, err := s.kc.FetchAdminToken(ctx)
	if err != nil {
		return nil, classified("не удалось получить токен администратора Keycloak", err)
	}

	role, err := s.kc.CreateRole(ctx, token, name, description)
	if err != nil {
		if keycloak.IsConflict(err) {
			return nil, newError(KindProviderConflict, "роль "+name+" уже существует", err)
		}
		return nil, classified("не удалось создать роль", err)
	}

	s.logger.Info("Роль создана", slog.String("role", name), slog.String("role_id", role.ID))
	return role, nil
}

// CreateDefaultRoles создаёт базовый набор ролей. Ошибки отдельных ролей
// не возвращаются, провал возможен только при получении токена.
func (s *RoleService) CreateDefaultRoles(ctx context.Context) error {
	token, err := s.kc.FetchAdminToken(ctx)
	if err != nil {
		return classified("не удалось получить токен администратора Keycloak", err)
	}
	s.kc.CreateDefaultRoleSet(ctx, token)
	return nil
}

// AssignRoles назначает роли пользователю Keycloak. При replace текущие
// realm-роли предварительно снимаются.
func (s *RoleService) AssignRoles(ctx context.Context, username string, roles []string, replace bool) ([]string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, validationError("username обязателен")
	}
	if len(roles) == 0 {
		return nil, validationError("roles не может быть пустым")
	}

	token, userID, err := s.resolveUser(ctx, username)
	if err != nil {
		return nil, err
	}

	var assigned []string
	if replace {
		assigned, err = s.kc.ReplaceUserRealmRoles(ctx, token, userID, roles)
	} else {
		assigned, err = s.kc.AssignRolesToUser(ctx, token, userID, roles)
	}
	if err != nil {
		return assigned, classified("не удалось назначить роли", err)
	}

	s.logger.Info("Роли пользователя обновлены",
		slog.String("username", username),
		slog.Any("roles", assigned),
		slog.Bool("replace", replace),
	)
	return assigned, nil
}

// GetUserRoles возвращает снимок ролей и групп пользователя.
func (s *RoleService) GetUserRoles(ctx context.Context, username string) (*model.UserRoleSnapshot, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, validationError("username обязателен")
	}

	token, userID, err := s.resolveUser(ctx, username)
	if err != nil {
		return nil, err
	}

	snap := s.kc.GetUserRoleSnapshot(ctx, token, userID)
	snap.Username = username
	return snap, nil
}

// CheckAdminAccess проверяет, что токен администратора выдаётся.
func (s *RoleService) CheckAdminAccess(ctx context.Context) error {
	if _, err := s.kc.FetchAdminToken(ctx); err != nil {
		return classified("Keycloak admin API недоступен", err)
	}
	return nil
}

func (s *RoleService) resolveUser(ctx context.Context, username string) (token, userID string, err error) {
	token, err = s.kc.FetchAdminToken(ctx)
	if err != nil {
		return "", "", classified("не удалось получить токен администратора Keycloak", err)
	}

	userID, err = s.kc.FindUserID(ctx, token, username)
	if err != nil {
		if Classify(err) == KindNotProvisioned {
			return "", "", newError(KindNotProvisioned, "пользователь "+username+" не найден в Keycloak", err)
		}
		return "", "", classified("ошибка поиска пользователя в Keycloak", err)
	}
	return token, userID, nil
}
