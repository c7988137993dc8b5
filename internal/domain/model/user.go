// Пакет model содержит доменные модели Identity Module.
package model

import "time"

// User — локальная запись пользователя.
// Хранится в таблице users и является зеркалом учётной записи Keycloak.
type User struct {
	// ID — локальный числовой идентификатор (user_seq)
	ID int64
	// Username — уникальное имя пользователя
	Username string
	// Email — уникальный адрес электронной почты
	Email string
	// PasswordHash — bcrypt-хеш пароля
	PasswordHash string
	// Role — локальная роль (USER, ADMIN, MANAGER)
	Role string
	// Enabled — false блокирует вход независимо от состояния в Keycloak
	Enabled bool
	// KeycloakUserID — идентификатор в Keycloak, nil до завершения provisioning
	KeycloakUserID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserUpdate — частичное изменение профиля. nil-поля не меняются.
type UserUpdate struct {
	Username *string
	Email    *string
	Role     *string
	Enabled  *bool
}

// Apply применяет изменения к пользователю.
func (u UserUpdate) Apply(user *User) {
	if u.Username != nil {
		user.Username = *u.Username
	}
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.Role != nil {
		user.Role = *u.Role
	}
	if u.Enabled != nil {
		user.Enabled = *u.Enabled
	}
}
