// Пакет service — рабочие процессы Identity Module: provisioning,
// вход, управление ролями и локальными пользователями.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/rbac"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
)

// UserProvisioner — операции Keycloak, нужные для provisioning.
type UserProvisioner interface {
	FetchAdminToken(ctx context.Context) (string, error)
	CreateUser(ctx context.Context, token string, req model.ProvisioningRequest) (string, error)
	AssignRolesToUser(ctx context.Context, token, userID string, names []string) ([]string, error)
	AssignGroupsToUser(ctx context.Context, token, userID string, names []string) ([]string, error)
}

// ProvisioningService создаёт пользователя в Keycloak, назначает роли
// и группы и сохраняет локальное зеркало. Keycloak считается источником
// истины: сбой локальной записи не откатывает удалённую учётную запись.
type ProvisioningService struct {
	kc       UserProvisioner
	users    repository.UserRepository
	hashCost int
	logger   *slog.Logger
}

// NewProvisioningService создаёт сервис provisioning.
func NewProvisioningService(kc UserProvisioner, users repository.UserRepository, logger *slog.Logger) *ProvisioningService {
	return &ProvisioningService{
		kc:       kc,
		users:    users,
		hashCost: bcrypt.DefaultCost,
		logger:   logger.With(slog.String("component", "provisioning_service")),
	}
}

// Provision выполняет полный цикл: проверка → токен → пользователь в
// Keycloak → роли и группы → локальная запись. При ошибке возвращает
// результат с Success == false и *Error.
func (s *ProvisioningService) Provision(ctx context.Context, req model.ProvisioningRequest) (*model.ProvisioningResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if err := validateProvisioning(req); err != nil {
		return s.fail(req, err), err
	}

	// Каждый пользователь Keycloak получает хотя бы одну роль.
	if len(req.Roles) == 0 {
		req.Roles = slices.Clone(rbac.DefaultProvisioningRoles)
	}

	token, err := s.kc.FetchAdminToken(ctx)
	if err != nil {
		serr := classified("не удалось получить токен администратора Keycloak", err)
		return s.fail(req, serr), serr
	}

	userID, err := s.kc.CreateUser(ctx, token, req)
	if err != nil {
		serr := classified("не удалось создать пользователя в Keycloak", err)
		if serr.Kind == KindProviderConflict {
			serr.Message = "пользователь с таким username или email уже существует"
		}
		return s.fail(req, serr), serr
	}

	assignedRoles, assignedGroups := s.assign(ctx, token, userID, req)

	result := &model.ProvisioningResult{
		Success:        true,
		KeycloakUserID: userID,
		Username:       req.Username,
		Email:          req.Email,
		AssignedRoles:  assignedRoles,
		AssignedGroups: assignedGroups,
		CreatedAt:      time.Now().UTC(),
		Message:        "Пользователь создан в Keycloak и локальной БД",
	}

	if err := s.persistLocal(ctx, req, userID); err != nil {
		warn := newError(KindPartialSyncWarning, "локальная запись не сохранена", err)
		s.logger.Warn("Пользователь создан в Keycloak, локальная запись не сохранена",
			slog.String("username", req.Username),
			slog.String("keycloak_user_id", userID),
			slog.String("kind", string(warn.Kind)),
			slog.String("error", err.Error()),
		)
		result.SyncWarning = true
		result.ErrorCode = string(warn.Kind)
		result.ErrorMessage = warn.Error()
		result.Message = fmt.Sprintf("Пользователь создан в Keycloak (warning: local sync failed: %v)", err)
		provisioningTotal.WithLabelValues("sync_warning").Inc()
		return result, nil
	}

	s.logger.Info("Пользователь создан",
		slog.String("username", req.Username),
		slog.String("keycloak_user_id", userID),
		slog.Any("roles", assignedRoles),
		slog.Any("groups", assignedGroups),
	)
	provisioningTotal.WithLabelValues("success").Inc()
	return result, nil
}

// ProvisionPulsarSystem создаёт системный аккаунт интеграции Pulsar
// с преднастроенными ролями и группой и локальной ролью ADMIN.
func (s *ProvisioningService) ProvisionPulsarSystem(ctx context.Context, username, email, password string) (*model.ProvisioningResult, error) {
	return s.Provision(ctx, model.ProvisioningRequest{
		Username:      username,
		Email:         email,
		Password:      password,
		FirstName:     "Pulsar",
		LastName:      "System",
		Enabled:       true,
		EmailVerified: true,
		Roles:         slices.Clone(rbac.PulsarSystemRoles),
		Groups:        slices.Clone(rbac.PulsarSystemGroups),
		LocalRole:     rbac.RoleAdmin,
	})
}

// CheckAdminAccess проверяет, что токен администратора выдаётся.
func (s *ProvisioningService) CheckAdminAccess(ctx context.Context) error {
	if _, err := s.kc.FetchAdminToken(ctx); err != nil {
		return classified("Keycloak admin API недоступен", err)
	}
	return nil
}

func validateProvisioning(req model.ProvisioningRequest) error {
	var missing []string
	if req.Username == "" {
		missing = append(missing, "username")
	}
	if req.Email == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(req.Password) == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return validationError("missing field: " + strings.Join(missing, ", "))
	}
	return nil
}

// assign назначает роли и группы параллельно. Ошибки только логируются:
// частичное назначение не проваливает provisioning.
func (s *ProvisioningService) assign(ctx context.Context, token, userID string, req model.ProvisioningRequest) (roles, groups []string) {
	var g errgroup.Group

	if len(req.Roles) > 0 {
		g.Go(func() error {
			assigned, err := s.kc.AssignRolesToUser(ctx, token, userID, req.Roles)
			if err != nil {
				s.logger.Warn("Роли назначены частично",
					slog.String("keycloak_user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			roles = assigned
			return nil
		})
	}
	if len(req.Groups) > 0 {
		g.Go(func() error {
			assigned, err := s.kc.AssignGroupsToUser(ctx, token, userID, req.Groups)
			if err != nil {
				s.logger.Warn("Группы назначены частично",
					slog.String("keycloak_user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			groups = assigned
			return nil
		})
	}
	_ = g.Wait()

	if roles == nil {
		roles = []string{}
	}
	if groups == nil {
		groups = []string{}
	}
	return roles, groups
}

// persistLocal сохраняет локальное зеркало. Если запись с таким username
// уже есть и ещё не привязана к Keycloak, она привязывается.
func (s *ProvisioningService) persistLocal(ctx context.Context, req model.ProvisioningRequest, userID string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return fmt.Errorf("хеширование пароля: %w", err)
	}

	role := rbac.RoleUser
	if req.LocalRole != "" {
		role = rbac.NormalizeRole(req.LocalRole)
	}

	user := &model.User{
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   string(hash),
		Role:           role,
		Enabled:        req.Enabled,
		KeycloakUserID: &userID,
	}

	err = s.users.Create(ctx, user)
	if err == nil || !errors.Is(err, repository.ErrConflict) {
		return err
	}

	existing, gerr := s.users.GetByUsername(ctx, req.Username)
	if gerr != nil || existing.KeycloakUserID != nil || existing.Email != req.Email {
		return err
	}
	existing.KeycloakUserID = &userID
	if uerr := s.users.Update(ctx, existing); uerr != nil {
		return uerr
	}
	s.logger.Info("Существующая локальная запись привязана к Keycloak",
		slog.String("username", req.Username),
		slog.Int64("user_seq", existing.ID),
	)
	return nil
}

func (s *ProvisioningService) fail(req model.ProvisioningRequest, err error) *model.ProvisioningResult {
	kind := Classify(err)
	msg := err.Error()
	var se *Error
	if errors.As(err, &se) {
		msg = se.Message
	}

	s.logger.Warn("Provisioning не выполнен",
		slog.String("username", req.Username),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)
	provisioningTotal.WithLabelValues("failed").Inc()

	return &model.ProvisioningResult{
		Success:      false,
		Username:     req.Username,
		Email:        req.Email,
		Message:      "Не удалось создать пользователя",
		ErrorCode:    string(kind),
		ErrorMessage: msg,
	}
}
