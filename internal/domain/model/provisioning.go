package model

import (
	"slices"
	"time"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/rbac"
)

// ProvisioningRequest — запрос на создание пользователя в Keycloak и локальной БД.
type ProvisioningRequest struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
	// Enabled и EmailVerified по умолчанию true
	Enabled       bool
	EmailVerified bool
	Roles         []string
	Groups        []string
	// LocalRole — роль локальной записи (USER или ADMIN для системных аккаунтов)
	LocalRole string
}

// ProvisioningResult — итог provisioning.
// KeycloakUserID заполнен только при успехе. ErrorCode и ErrorMessage
// заполняются при ошибке и при SyncWarning.
type ProvisioningResult struct {
	Success        bool
	KeycloakUserID string
	Username       string
	Email          string
	AssignedRoles  []string
	AssignedGroups []string
	CreatedAt      time.Time
	Message        string
	ErrorCode      string
	ErrorMessage   string
	// SyncWarning — удалённая запись создана, локальная нет
	SyncWarning bool
}

// RoleDescriptor — realm-роль Keycloak.
type RoleDescriptor struct {
	ID          string
	Name        string
	Description string
}

// UserRoleSnapshot — роли и группы одной учётной записи Keycloak.
// Каждая часть может оказаться пустой, если её не удалось получить.
type UserRoleSnapshot struct {
	Username       string
	KeycloakUserID string
	RealmRoles     []string
	ClientRoles    []string
	Groups         []string
}

// AllRoles возвращает объединение realm- и client-ролей без повторов.
func (s *UserRoleSnapshot) AllRoles() []string {
	all := make([]string, 0, len(s.RealmRoles)+len(s.ClientRoles))
	seen := make(map[string]struct{}, cap(all))
	for _, r := range slices.Concat(s.RealmRoles, s.ClientRoles) {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		all = append(all, r)
	}
	return all
}

// HasRole проверяет роль среди realm- и client-ролей.
func (s *UserRoleSnapshot) HasRole(name string) bool {
	return slices.Contains(s.RealmRoles, name) || slices.Contains(s.ClientRoles, name)
}

func (s *UserRoleSnapshot) HasAdminRole() bool   { return s.HasRole(rbac.RealmRoleAdmin) }
func (s *UserRoleSnapshot) HasManagerRole() bool { return s.HasRole(rbac.RealmRoleManager) }
func (s *UserRoleSnapshot) HasUserRole() bool    { return s.HasRole(rbac.RealmRoleUser) }
