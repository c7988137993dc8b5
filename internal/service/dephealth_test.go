package service

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
)

func TestHealthPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://kc.example/realms/usertest/protocol/openid-connect/certs", "/realms/usertest/protocol/openid-connect/certs"},
		{"https://kc.example", "/health"},
		{"://bad", "/health"},
	}
	for _, tt := range tests {
		if got := healthPath(tt.in); got != tt.want {
			t.Errorf("healthPath(%q) = %q, ожидается %q", tt.in, got, tt.want)
		}
	}
}

func TestNewDephealthServiceWithRegisterer(t *testing.T) {
	db, err := sql.Open("pgx", "postgres://identity@127.0.0.1:1/identity?sslmode=disable")
	if err != nil {
		t.Fatalf("sql.Open() ошибка: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ds, err := NewDephealthServiceWithRegisterer(DephealthConfig{
		ServiceID:       "identity-module",
		Group:           "goartstore",
		DB:              db,
		PostgresURL:     "postgres://identity@127.0.0.1:1/identity?sslmode=disable",
		KeycloakJWKSURL: "http://127.0.0.1:1/realms/usertest/protocol/openid-connect/certs",
		CheckInterval:   time.Minute,
	}, testLogger(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewDephealthServiceWithRegisterer() ошибка: %v", err)
	}
	if ds == nil {
		t.Fatal("сервис не создан")
	}
}
