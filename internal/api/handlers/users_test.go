package handlers

import (
	"fmt"
	"net/http"
	"testing"
)

func TestLocalUsersCRUD(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/users", map[string]string{
		"username": "erin", "email": "erin@example.com", "password": "secret1", "role": "manager",
	})
	expectStatus(t, rec, http.StatusCreated)
	created := decodeBody(t, rec)
	if created["role"] != "MANAGER" || created["enabled"] != true {
		t.Errorf("ответ = %v", created)
	}
	if _, ok := created["password_hash"]; ok {
		t.Error("хеш пароля не должен попадать в ответ")
	}
	id := int64(created["id"].(float64))

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/users/%d", id), nil)
	expectStatus(t, rec, http.StatusOK)
	if body := decodeBody(t, rec); body["username"] != "erin" {
		t.Errorf("username = %v, ожидалось erin", body["username"])
	}

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/users/%d", id), map[string]any{"enabled": false, "role": "ADMIN"})
	expectStatus(t, rec, http.StatusOK)
	if body := decodeBody(t, rec); body["enabled"] != false || body["role"] != "ADMIN" {
		t.Errorf("ответ = %v", body)
	}

	rec = env.do(t, http.MethodGet, "/users?limit=10", nil)
	expectStatus(t, rec, http.StatusOK)
	list := decodeBody(t, rec)
	if list["total"] != float64(1) || list["has_more"] != false {
		t.Errorf("ответ = %v", list)
	}

	expectStatus(t, env.do(t, http.MethodDelete, fmt.Sprintf("/users/%d", id), nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, fmt.Sprintf("/users/%d", id), nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, fmt.Sprintf("/users/%d", id), nil), http.StatusNotFound)
}

func TestLocalUsers_Errors(t *testing.T) {
	env := newTestEnv()
	seedUser(t, env, "frank", true)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{"недопустимая роль", http.MethodPost, "/users", map[string]string{"username": "x", "email": "x@example.com", "password": "secret1", "role": "ROOT"}, http.StatusBadRequest},
		{"короткий пароль", http.MethodPost, "/users", map[string]string{"username": "x", "email": "x@example.com", "password": "123"}, http.StatusBadRequest},
		{"занятый username", http.MethodPost, "/users", map[string]string{"username": "frank", "email": "other@example.com", "password": "secret1"}, http.StatusConflict},
		{"нечисловой id", http.MethodGet, "/users/abc", nil, http.StatusBadRequest},
		{"несуществующий id", http.MethodPut, "/users/999", map[string]string{"email": "z@example.com"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(t, tt.method, tt.path, tt.body), tt.wantStatus)
		})
	}
}

func TestLocalUsers_ErrorContext(t *testing.T) {
	env := newTestEnv()
	seedUser(t, env, "grace", true)

	tests := []struct {
		name      string
		method    string
		path      string
		body      any
		wantField string
		wantValue any
	}{
		{"чтение несуществующего", http.MethodGet, "/users/999", nil, "user_seq", float64(999)},
		{"удаление несуществующего", http.MethodDelete, "/users/999", nil, "user_seq", float64(999)},
		{"изменение несуществующего", http.MethodPut, "/users/999", map[string]string{"username": "henry"}, "username", "henry"},
		{"некорректный id", http.MethodGet, "/users/abc", nil, "user_seq", "abc"},
		{"занятый username", http.MethodPost, "/users", map[string]string{"username": "grace", "email": "g2@example.com", "password": "secret1"}, "username", "grace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := decodeBody(t, env.do(t, tt.method, tt.path, tt.body))
			if errorCode(t, body) == "" {
				t.Fatalf("нет кода ошибки: %v", body)
			}
			if body[tt.wantField] != tt.wantValue {
				t.Errorf("%s = %v, ожидалось %v", tt.wantField, body[tt.wantField], tt.wantValue)
			}
		})
	}
}
