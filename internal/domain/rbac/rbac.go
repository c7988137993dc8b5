// Пакет rbac описывает локальные роли пользователей и преднастроенные наборы ролей Keycloak.
// Локальная роль хранится в users.role, realm-роли Keycloak живут отдельно.
package rbac

import "strings"

// Локальные роли.
const (
	RoleUser    = "USER"
	RoleManager = "MANAGER"
	RoleAdmin   = "ADMIN"
)

// Realm-роли Keycloak, которыми закрыты ролевые endpoints.
const (
	RealmRoleUser    = "user"
	RealmRoleManager = "manager"
	RealmRoleAdmin   = "admin"
)

var validRoles = map[string]struct{}{
	RoleUser:    {},
	RoleManager: {},
	RoleAdmin:   {},
}

// DefaultRealmRoles — базовый набор realm-ролей Keycloak и их описания.
var DefaultRealmRoles = []struct {
	Name        string
	Description string
}{
	{RealmRoleAdmin, "Administrator role with full access"},
	{RealmRoleUser, "Standard user role"},
	{RealmRoleManager, "Manager role with elevated permissions"},
}

// Роли и группа, которые получает пользователь без явного списка,
// и преднастройка системного аккаунта Pulsar.
var (
	DefaultProvisioningRoles = []string{"user", "manage-account"}
	PulsarSystemRoles        = []string{"delete-account", "manage-account"}
	PulsarSystemGroups       = []string{"pulsar_system"}
)

// IsValidRole проверяет, что роль входит в закрытый набор локальных ролей.
func IsValidRole(role string) bool {
	_, ok := validRoles[role]
	return ok
}

// NormalizeRole приводит роль к верхнему регистру.
// Пустая строка превращается в RoleUser.
func NormalizeRole(role string) string {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return RoleUser
	}
	return role
}
