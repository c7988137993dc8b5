package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

// UserRepository описывает операции над таблицей users.
type UserRepository interface {
	// Create вставляет запись и заполняет ID, CreatedAt, UpdatedAt.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	// List возвращает страницу пользователей по возрастанию ID.
	List(ctx context.Context, limit, offset int) ([]*model.User, error)
	Count(ctx context.Context) (int, error)
	// Update сохраняет username, email, role, enabled и keycloak_user_id.
	Update(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id int64) error
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, username, email, password_hash, role, enabled,
	keycloak_user_id, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Enabled,
		&u.KeycloakUserID, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// conflictError переводит нарушение уникальности в ErrConflict с указанием поля.
func conflictError(err error) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return nil
	}
	switch constraint {
	case "idx_users_username":
		return fmt.Errorf("%w: пользователь с таким username уже существует", ErrConflict)
	case "idx_users_email":
		return fmt.Errorf("%w: пользователь с таким email уже существует", ErrConflict)
	case "idx_users_keycloak_user_id":
		return fmt.Errorf("%w: keycloak_user_id уже привязан к другому пользователю", ErrConflict)
	default:
		return fmt.Errorf("%w: %s", ErrConflict, constraint)
	}
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, role, enabled, keycloak_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		u.Username, u.Email, u.PasswordHash, u.Role, u.Enabled, u.KeycloakUserID,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if cerr := conflictError(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("создание пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, where)
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя по %s: %w", where, err)
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, "id", id)
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, "username", username)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email", email)
}

func (r *userRepo) exists(ctx context.Context, column, value string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM users WHERE %s = $1)`, column)
	var ok bool
	if err := r.db.QueryRow(ctx, query, value).Scan(&ok); err != nil {
		return false, fmt.Errorf("проверка существования по %s: %w", column, err)
	}
	return ok, nil
}

func (r *userRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username", username)
}

func (r *userRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY id LIMIT $1 OFFSET $2`, userColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("сканирование пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *userRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("подсчёт пользователей: %w", err)
	}
	return n, nil
}

func (r *userRepo) Update(ctx context.Context, u *model.User) error {
	query := `
		UPDATE users
		SET username = $2, email = $3, role = $4, enabled = $5, keycloak_user_id = $6
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.Username, u.Email, u.Role, u.Enabled, u.KeycloakUserID,
	).Scan(&u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if cerr := conflictError(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("обновление пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("удаление пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
