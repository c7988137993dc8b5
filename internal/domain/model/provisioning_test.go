package model

import (
	"sort"
	"testing"
)

func TestUserRoleSnapshot_AllRoles(t *testing.T) {
	s := &UserRoleSnapshot{
		RealmRoles:  []string{"user", "offline_access"},
		ClientRoles: []string{"manage-account", "user"},
	}

	all := s.AllRoles()
	sort.Strings(all)

	want := []string{"manage-account", "offline_access", "user"}
	if len(all) != len(want) {
		t.Fatalf("AllRoles() = %v, ожидается %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("AllRoles()[%d] = %q, ожидается %q", i, all[i], want[i])
		}
	}
}

func TestUserRoleSnapshot_Empty(t *testing.T) {
	s := &UserRoleSnapshot{}
	if len(s.AllRoles()) != 0 {
		t.Error("пустой снимок должен давать пустой список ролей")
	}
	if s.HasAdminRole() || s.HasManagerRole() || s.HasUserRole() {
		t.Error("пустой снимок не должен содержать ролей")
	}
}

func TestUserRoleSnapshot_HasRole(t *testing.T) {
	s := &UserRoleSnapshot{
		RealmRoles:  []string{"manager"},
		ClientRoles: []string{"admin"},
	}
	if !s.HasAdminRole() {
		t.Error("admin в client-ролях должен учитываться")
	}
	if !s.HasManagerRole() {
		t.Error("manager в realm-ролях должен учитываться")
	}
	if s.HasUserRole() {
		t.Error("роли user нет")
	}
}

func TestUserUpdate_Apply(t *testing.T) {
	u := &User{Username: "alice", Email: "alice@x.com", Role: "USER", Enabled: true}

	newEmail := "alice@y.com"
	disabled := false
	UserUpdate{Email: &newEmail, Enabled: &disabled}.Apply(u)

	if u.Username != "alice" {
		t.Errorf("Username изменился: %q", u.Username)
	}
	if u.Email != newEmail {
		t.Errorf("Email = %q, ожидается %q", u.Email, newEmail)
	}
	if u.Enabled {
		t.Error("Enabled должен стать false")
	}
	if u.Role != "USER" {
		t.Errorf("Role изменилась: %q", u.Role)
	}
}
