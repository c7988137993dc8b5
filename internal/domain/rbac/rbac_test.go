package rbac

import (
	"testing"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleUser, true},
		{RoleManager, true},
		{RoleAdmin, true},
		{"user", false},
		{"readonly", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidRole(tt.role); got != tt.want {
			t.Errorf("IsValidRole(%q) = %v, ожидается %v", tt.role, got, tt.want)
		}
	}
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"пустая строка — USER", "", RoleUser},
		{"пробелы — USER", "   ", RoleUser},
		{"нижний регистр", "admin", RoleAdmin},
		{"смешанный регистр с пробелами", " Manager ", RoleManager},
		{"неизвестная роль сохраняется", "guest", "GUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeRole(tt.in); got != tt.want {
				t.Errorf("NormalizeRole(%q) = %q, ожидается %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPresets(t *testing.T) {
	if len(DefaultRealmRoles) != 3 {
		t.Fatalf("ожидалось 3 базовые роли, получено %d", len(DefaultRealmRoles))
	}
	names := map[string]bool{}
	for _, r := range DefaultRealmRoles {
		if r.Description == "" {
			t.Errorf("у роли %s нет описания", r.Name)
		}
		names[r.Name] = true
	}
	for _, n := range []string{"admin", "user", "manager"} {
		if !names[n] {
			t.Errorf("базовый набор не содержит роль %s", n)
		}
	}

	if len(DefaultProvisioningRoles) != 2 || DefaultProvisioningRoles[0] != "user" || DefaultProvisioningRoles[1] != "manage-account" {
		t.Errorf("DefaultProvisioningRoles = %v", DefaultProvisioningRoles)
	}
	if len(PulsarSystemGroups) != 1 || PulsarSystemGroups[0] != "pulsar_system" {
		t.Errorf("PulsarSystemGroups = %v", PulsarSystemGroups)
	}
}
