package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/rbac"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
)

// minPasswordLength — минимальная длина пароля локального пользователя.
const minPasswordLength = 6

// UserService — CRUD локальных записей без привязки к Keycloak.
type UserService struct {
	users    repository.UserRepository
	tx       *repository.TxRunner
	hashCost int
	logger   *slog.Logger
}

// NewUserService создаёт сервис локальных пользователей. tx может быть
// nil, тогда изменения выполняются без транзакции.
func NewUserService(users repository.UserRepository, tx *repository.TxRunner, logger *slog.Logger) *UserService {
	return &UserService{
		users:    users,
		tx:       tx,
		hashCost: bcrypt.DefaultCost,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

// List возвращает страницу пользователей и их общее количество.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*model.User, int, error) {
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, newError(KindInternal, "ошибка получения списка пользователей", err)
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, 0, newError(KindInternal, "ошибка подсчёта пользователей", err)
	}
	return users, total, nil
}

// Get возвращает пользователя по ID.
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, classified("пользователь не найден", err)
	}
	return user, nil
}

// Create создаёт локального пользователя. Уникальность проверяется
// заранее, а гонку закрывает уникальный индекс.
func (s *UserService) Create(ctx context.Context, username, email, password, role string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	role = rbac.NormalizeRole(role)

	switch {
	case username == "" || email == "":
		return nil, validationError("username и email обязательны")
	case len(password) < minPasswordLength:
		return nil, validationError("пароль короче 6 символов")
	case !rbac.IsValidRole(role):
		return nil, validationError("недопустимая роль " + role + ": допустимые USER, MANAGER, ADMIN")
	}

	if exists, err := s.users.ExistsByUsername(ctx, username); err != nil {
		return nil, newError(KindInternal, "ошибка проверки username", err)
	} else if exists {
		return nil, newError(KindProviderConflict, "username "+username+" уже занят", repository.ErrConflict)
	}
	switch owner, err := s.users.GetByEmail(ctx, email); {
	case err == nil:
		return nil, newError(KindProviderConflict,
			"email "+email+" уже занят пользователем "+owner.Username, repository.ErrConflict)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, newError(KindInternal, "ошибка проверки email", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, newError(KindInternal, "ошибка хеширования пароля", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Enabled:      true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, classified("не удалось создать пользователя", err)
	}

	s.logger.Info("Локальный пользователь создан",
		slog.String("username", username),
		slog.Int64("user_seq", user.ID),
		slog.String("role", role),
	)
	return user, nil
}

// Update применяет частичное изменение профиля.
func (s *UserService) Update(ctx context.Context, id int64, upd model.UserUpdate) (*model.User, error) {
	if upd.Role != nil {
		role := rbac.NormalizeRole(*upd.Role)
		if !rbac.IsValidRole(role) {
			return nil, validationError("недопустимая роль " + role + ": допустимые USER, MANAGER, ADMIN")
		}
		upd.Role = &role
	}
	for _, f := range []*string{upd.Username, upd.Email} {
		if f != nil && strings.TrimSpace(*f) == "" {
			return nil, validationError("username и email не могут быть пустыми")
		}
	}

	var user *model.User
	err := s.inTx(ctx, func(repo repository.UserRepository) error {
		u, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		upd.Apply(u)
		if err := repo.Update(ctx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, classified("не удалось обновить пользователя", err)
	}

	s.logger.Info("Локальный пользователь обновлён", slog.Int64("user_seq", id))
	return user, nil
}

// Delete удаляет локальную запись. Учётная запись в Keycloak не трогается.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotProvisioned, "пользователь не найден", err)
		}
		return newError(KindInternal, "не удалось удалить пользователя", err)
	}
	s.logger.Info("Локальный пользователь удалён", slog.Int64("user_seq", id))
	return nil
}

func (s *UserService) inTx(ctx context.Context, fn func(repo repository.UserRepository) error) error {
	if s.tx == nil {
		return fn(s.users)
	}
	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(repository.NewUserRepository(tx))
	})
}
