package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/oidc"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Пользователи в памяти ---

type memUserRepo struct {
	mu        sync.Mutex
	nextID    int64
	users     map[int64]*model.User
	createErr error
	calls     atomic.Int32
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[int64]*model.User{}}
}

func (r *memUserRepo) add(u *model.User) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	u.ID = r.nextID
	cp := *u
	r.users[u.ID] = &cp
	return u
}

func (r *memUserRepo) Create(_ context.Context, u *model.User) error {
	r.calls.Add(1)
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.users {
		if ex.Username == u.Username || ex.Email == u.Email {
			return fmt.Errorf("%w: дубль", repository.ErrConflict)
		}
	}
	r.nextID++
	u.ID = r.nextID
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) find(pred func(*model.User) bool) (*model.User, error) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if pred(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == username })
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email })
}

func (r *memUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	return err == nil, nil
}

func (r *memUserRepo) List(_ context.Context, limit, offset int) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var out []*model.User
	for i, id := range ids {
		if i < offset || len(out) >= limit {
			continue
		}
		cp := *r.users[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memUserRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

func (r *memUserRepo) Update(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, ex := range r.users {
		if id != u.ID && (ex.Username == u.Username || ex.Email == u.Email) {
			return fmt.Errorf("%w: дубль", repository.ErrConflict)
		}
	}
	u.UpdatedAt = time.Now()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// --- Keycloak ---

type fakeKeycloak struct {
	mu sync.Mutex

	tokenErr      error
	createErr     error
	findErr       error
	roleErr       error
	assignRoleErr error
	groupErr      error

	createdUsers  []model.ProvisioningRequest
	rolesAsked    []string
	groupsAsked   []string
	knownRoles    map[string]bool
	replaceCalled bool
	defaultsRuns  int
	tokenCalls    atomic.Int32
}

func newFakeKeycloak() *fakeKeycloak {
	return &fakeKeycloak{knownRoles: map[string]bool{"user": true, "manage-account": true, "delete-account": true, "admin": true}}
}

func (f *fakeKeycloak) FetchAdminToken(context.Context) (string, error) {
	f.tokenCalls.Add(1)
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "admin-token", nil
}

func (f *fakeKeycloak) CreateUser(_ context.Context, _ string, req model.ProvisioningRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.createdUsers = append(f.createdUsers, req)
	return "kc-" + req.Username, nil
}

func (f *fakeKeycloak) FindUserID(_ context.Context, _ string, username string) (string, error) {
	if f.findErr != nil {
		return "", f.findErr
	}
	return "kc-" + username, nil
}

func (f *fakeKeycloak) AssignRolesToUser(_ context.Context, _, _ string, names []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolesAsked = append(f.rolesAsked, names...)
	var assigned []string
	for _, n := range names {
		if f.knownRoles[n] {
			assigned = append(assigned, n)
		}
	}
	return assigned, f.assignRoleErr
}

func (f *fakeKeycloak) AssignGroupsToUser(_ context.Context, _, _ string, names []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupsAsked = append(f.groupsAsked, names...)
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	return slices.Clone(names), nil
}

func (f *fakeKeycloak) CreateRole(_ context.Context, _, name, description string) (*model.RoleDescriptor, error) {
	if f.roleErr != nil {
		return nil, f.roleErr
	}
	return &model.RoleDescriptor{ID: "id-" + name, Name: name, Description: description}, nil
}

func (f *fakeKeycloak) CreateDefaultRoleSet(context.Context, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultsRuns++
}

func (f *fakeKeycloak) ReplaceUserRealmRoles(ctx context.Context, token, userID string, names []string) ([]string, error) {
	f.mu.Lock()
	f.replaceCalled = true
	f.mu.Unlock()
	return f.AssignRolesToUser(ctx, token, userID, names)
}

func (f *fakeKeycloak) GetUserRoleSnapshot(_ context.Context, _, userID string) *model.UserRoleSnapshot {
	return &model.UserRoleSnapshot{
		KeycloakUserID: userID,
		RealmRoles:     []string{"user"},
		ClientRoles:    []string{"manage-account"},
		Groups:         []string{},
	}
}

// --- Token endpoint ---

type fakeTokens struct {
	err       error
	calls     atomic.Int32
	discovery *oidc.Discovery
}

func (f *fakeTokens) PasswordGrant(_ context.Context, _, _ string) (*oidc.TokenBundle, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &oidc.TokenBundle{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", ExpiresIn: 300}, nil
}

func (f *fakeTokens) Refresh(_ context.Context, refreshToken string) (*oidc.TokenBundle, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &oidc.TokenBundle{AccessToken: "access-2", RefreshToken: refreshToken, TokenType: "Bearer"}, nil
}

func (f *fakeTokens) Discover(context.Context) (*oidc.Discovery, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.discovery, nil
}
