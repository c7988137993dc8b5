package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/identity-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/keycloak"
	"github.com/bigkaa/goartstore/identity-module/internal/oidc"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
	"github.com/bigkaa/goartstore/identity-module/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memUsers — UserRepository в памяти.
type memUsers struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[int64]*model.User{}}
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.users {
		if ex.Username == u.Username || ex.Email == u.Email {
			return fmt.Errorf("%w: дубль", repository.ErrConflict)
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) find(pred func(*model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if pred(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.ID == id })
}

func (m *memUsers) GetByUsername(_ context.Context, name string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Username == name })
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email })
}

func (m *memUsers) ExistsByUsername(ctx context.Context, name string) (bool, error) {
	_, err := m.GetByUsername(ctx, name)
	return err == nil, nil
}

func (m *memUsers) List(_ context.Context, limit, offset int) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var out []*model.User
	for i, id := range ids {
		if i >= offset && len(out) < limit {
			cp := *m.users[id]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memUsers) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memUsers) Update(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// stubKeycloak — Keycloak, в котором имена пользователей уникальны.
type stubKeycloak struct {
	mu       sync.Mutex
	tokenErr error
	existing map[string]bool
}

func newStubKeycloak() *stubKeycloak {
	return &stubKeycloak{existing: map[string]bool{}}
}

func (s *stubKeycloak) FetchAdminToken(context.Context) (string, error) {
	if s.tokenErr != nil {
		return "", s.tokenErr
	}
	return "admin-token", nil
}

func (s *stubKeycloak) CreateUser(_ context.Context, _ string, req model.ProvisioningRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existing[req.Username] {
		return "", &keycloak.APIError{Op: "create_user", StatusCode: http.StatusConflict, Body: "User exists with same username"}
	}
	s.existing[req.Username] = true
	return "kc-" + req.Username, nil
}

func (s *stubKeycloak) FindUserID(_ context.Context, _ string, username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.existing[username] {
		return "", fmt.Errorf("%w: %s", keycloak.ErrUserNotFound, username)
	}
	return "kc-" + username, nil
}

func (s *stubKeycloak) AssignRolesToUser(_ context.Context, _, _ string, names []string) ([]string, error) {
	return slices.Clone(names), nil
}

func (s *stubKeycloak) AssignGroupsToUser(_ context.Context, _, _ string, names []string) ([]string, error) {
	return slices.Clone(names), nil
}

func (s *stubKeycloak) CreateRole(_ context.Context, _, name, description string) (*model.RoleDescriptor, error) {
	if name == "admin" {
		return nil, &keycloak.APIError{Op: "create_role", StatusCode: http.StatusConflict}
	}
	return &model.RoleDescriptor{ID: "role-" + name, Name: name, Description: description}, nil
}

func (s *stubKeycloak) CreateDefaultRoleSet(context.Context, string) {}

func (s *stubKeycloak) ReplaceUserRealmRoles(ctx context.Context, token, userID string, names []string) ([]string, error) {
	return s.AssignRolesToUser(ctx, token, userID, names)
}

func (s *stubKeycloak) GetUserRoleSnapshot(_ context.Context, _, userID string) *model.UserRoleSnapshot {
	return &model.UserRoleSnapshot{
		KeycloakUserID: userID,
		RealmRoles:     []string{"user"},
		ClientRoles:    []string{"manage-account"},
		Groups:         []string{},
	}
}

// stubTokens — token endpoint с единственным верным паролем.
type stubTokens struct {
	password string
	err      error
	calls    int
}

func (s *stubTokens) PasswordGrant(_ context.Context, _, password string) (*oidc.TokenBundle, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if password != s.password {
		return nil, &oidc.TokenError{StatusCode: http.StatusUnauthorized, Code: "invalid_grant"}
	}
	return &oidc.TokenBundle{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", ExpiresIn: 300}, nil
}

func (s *stubTokens) Refresh(_ context.Context, token string) (*oidc.TokenBundle, error) {
	s.calls++
	if token != "refresh" {
		return nil, &oidc.TokenError{StatusCode: http.StatusBadRequest, Code: "invalid_grant"}
	}
	return &oidc.TokenBundle{AccessToken: "access-2", RefreshToken: "refresh", TokenType: "Bearer"}, nil
}

func (s *stubTokens) Discover(context.Context) (*oidc.Discovery, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &oidc.Discovery{Issuer: "https://kc/realms/usertest", TokenEndpoint: "https://kc/realms/usertest/protocol/openid-connect/token"}, nil
}

// stubValidator принимает единственный токен.
type stubValidator struct{}

func (stubValidator) Validate(_ context.Context, token string) (*middleware.AuthClaims, error) {
	if token != "good" {
		return nil, middleware.ErrInvalidToken
	}
	return &middleware.AuthClaims{Subject: "kc-alice", PreferredUsername: "alice", Roles: []string{"user"}, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type testEnv struct {
	users   *memUsers
	kc      *stubKeycloak
	tokens  *stubTokens
	handler *APIHandler
	router  http.Handler
}

// newTestEnv собирает handler поверх фейков и маршрутизирует его так же,
// как сервер.
func newTestEnv() *testEnv {
	env := &testEnv{
		users:  newMemUsers(),
		kc:     newStubKeycloak(),
		tokens: &stubTokens{password: "secret1"},
	}

	logger := testLogger()
	h := NewAPIHandler(
		NewHealthHandler(nil, nil),
		service.NewLoginService(env.users, env.tokens, "/api/v1/users/create", logger),
		service.NewProvisioningService(env.kc, env.users, logger),
		service.NewRoleService(env.kc, logger),
		service.NewUserService(env.users, nil, logger),
		stubValidator{},
		logger,
	)

	r := chi.NewRouter()
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.RefreshToken)
	r.Post("/auth/validate", h.ValidateToken)
	r.Get("/auth/user-check/{username}", h.CheckUser)
	r.Get("/auth/test-connection", h.TestConnection)
	r.Post("/users/create", h.CreateUser)
	r.Post("/users/create-pulsar-system", h.CreatePulsarSystemUser)
	r.Get("/users/admin/health", h.UsersAdminHealth)
	r.Get("/users", h.ListUsers)
	r.Post("/users", h.CreateLocalUser)
	r.Get("/users/{id}", h.GetUser)
	r.Put("/users/{id}", h.UpdateLocalUser)
	r.Delete("/users/{id}", h.DeleteLocalUser)
	r.Post("/roles/create", h.CreateRole)
	r.Post("/roles/create-defaults", h.CreateDefaultRoles)
	r.Post("/roles/assign", h.AssignRoles)
	r.Get("/roles/user/{username}", h.GetUserRoles)
	r.Get("/roles/admin/health", h.RolesAdminHealth)
	r.Get("/public/hello", h.PublicHello)
	r.Get("/protected/info", h.ProtectedInfo)
	env.handler = h
	env.router = r
	return env
}
