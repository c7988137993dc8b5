package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/identity-module/internal/config"
	"github.com/bigkaa/goartstore/identity-module/internal/database"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

// setupTestDB поднимает PostgreSQL, применяет миграции и возвращает пул.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("identity_test"),
		postgres.WithUsername("identity"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("IM_DB_HOST", host)
	t.Setenv("IM_DB_PORT", port.Port())
	t.Setenv("IM_DB_NAME", "identity_test")
	t.Setenv("IM_DB_USER", "identity")
	t.Setenv("IM_DB_PASSWORD", "test-password")
	t.Setenv("IM_KEYCLOAK_URL", "http://localhost:8080")
	t.Setenv("IM_KEYCLOAK_ADMIN_USERNAME", "admin")
	t.Setenv("IM_KEYCLOAK_ADMIN_PASSWORD", "admin")
	t.Setenv("IM_KEYCLOAK_CLIENT_ID", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newUser(username string) *model.User {
	return &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$10$hash",
		Role:         "USER",
		Enabled:      true,
	}
}

func TestUserCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	u := newUser("alice")
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if u.ID == 0 {
		t.Error("ID не установлен")
	}
	if u.CreatedAt.IsZero() || u.UpdatedAt.IsZero() {
		t.Error("временные метки не установлены")
	}

	got, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername() ошибка: %v", err)
	}
	if got.ID != u.ID || got.Email != "alice@example.com" {
		t.Errorf("GetByUsername() = %+v", got)
	}
	if got.KeycloakUserID != nil {
		t.Errorf("KeycloakUserID = %v, ожидается nil", *got.KeycloakUserID)
	}

	if _, err := repo.GetByEmail(ctx, "alice@example.com"); err != nil {
		t.Errorf("GetByEmail() ошибка: %v", err)
	}

	kcID := "0d7c-kc"
	got.KeycloakUserID = &kcID
	got.Role = "MANAGER"
	got.Enabled = false
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}

	reloaded, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if reloaded.Role != "MANAGER" || reloaded.Enabled || reloaded.KeycloakUserID == nil || *reloaded.KeycloakUserID != kcID {
		t.Errorf("после Update() = %+v", reloaded)
	}

	if err := repo.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() после Delete: %v, ожидается ErrNotFound", err)
	}
	if err := repo.Delete(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete(): %v, ожидается ErrNotFound", err)
	}
}

func TestUserConflicts(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	if err := repo.Create(ctx, newUser("bob")); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	dupName := newUser("bob")
	dupName.Email = "other@example.com"
	if err := repo.Create(ctx, dupName); !errors.Is(err, ErrConflict) {
		t.Errorf("дубль username: %v, ожидается ErrConflict", err)
	}

	dupEmail := newUser("bobby")
	dupEmail.Email = "bob@example.com"
	if err := repo.Create(ctx, dupEmail); !errors.Is(err, ErrConflict) {
		t.Errorf("дубль email: %v, ожидается ErrConflict", err)
	}

	// Несколько записей без keycloak_user_id допустимы
	if err := repo.Create(ctx, newUser("carol")); err != nil {
		t.Errorf("второй пользователь без keycloak_user_id: %v", err)
	}
}

func TestUserExistsAndList(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	for _, name := range []string{"u1", "u2", "u3"} {
		if err := repo.Create(ctx, newUser(name)); err != nil {
			t.Fatalf("Create(%s) ошибка: %v", name, err)
		}
	}

	ok, err := repo.ExistsByUsername(ctx, "u2")
	if err != nil || !ok {
		t.Errorf("ExistsByUsername(u2) = %v, %v", ok, err)
	}
	ok, err = repo.ExistsByUsername(ctx, "nobody")
	if err != nil || ok {
		t.Errorf("ExistsByUsername(nobody) = %v, %v", ok, err)
	}
	if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByEmail(nobody) ошибка = %v, ожидается ErrNotFound", err)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count() = %d, %v; ожидается 3", n, err)
	}

	page, err := repo.List(ctx, 2, 1)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(page) != 2 || page[0].Username != "u2" || page[1].Username != "u3" {
		t.Errorf("List(2, 1) вернул %d записей", len(page))
	}
}

func TestUpdate_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepository(pool)

	u := newUser("ghost")
	u.ID = 999999
	if err := repo.Update(context.Background(), u); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() несуществующего: %v, ожидается ErrNotFound", err)
	}
}

func TestRunInTx_Rollback(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)

	errBoom := errors.New("boom")
	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewUserRepository(tx).Create(ctx, newUser("tx-user")); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("RunInTx() = %v, ожидается errBoom", err)
	}

	ok, err := NewUserRepository(pool).ExistsByUsername(ctx, "tx-user")
	if err != nil {
		t.Fatalf("ExistsByUsername() ошибка: %v", err)
	}
	if ok {
		t.Error("запись должна быть откатана")
	}
}
