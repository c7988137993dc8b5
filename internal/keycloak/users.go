package keycloak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

// BuildUserRepresentation собирает тело создания пользователя
// с одним постоянным паролем.
func BuildUserRepresentation(req model.ProvisioningRequest) UserRepresentation {
	return UserRepresentation{
		Username:      req.Username,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Enabled:       req.Enabled,
		EmailVerified: req.EmailVerified,
		Credentials: []CredentialRepresentation{{
			Type:      "password",
			Value:     req.Password,
			Temporary: false,
		}},
	}
}

// CreateUser создаёт пользователя и возвращает его ID. Keycloak не
// возвращает ID в ответе на создание, поэтому он ищется по username.
// Если поиск ничего не нашёл, возвращается ErrUserIDLookup.
func (c *Client) CreateUser(ctx context.Context, token string, req model.ProvisioningRequest) (string, error) {
	_, err := c.doJSON(ctx, "create_user", http.MethodPost, token,
		c.adminURL(nil, "users"), BuildUserRepresentation(req))
	if err != nil {
		return "", err
	}

	user, err := c.FindUserByUsername(ctx, token, req.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", fmt.Errorf("%w: %s", ErrUserIDLookup, req.Username)
		}
		return "", fmt.Errorf("%w: %w", ErrUserIDLookup, err)
	}

	c.logger.Info("Пользователь создан в Keycloak",
		slog.String("username", req.Username),
		slog.String("keycloak_user_id", user.ID),
	)
	return user.ID, nil
}

// FindUserByUsername ищет пользователя по точному совпадению username.
func (c *Client) FindUserByUsername(ctx context.Context, token, username string) (*UserRepresentation, error) {
	q := url.Values{"username": {username}, "exact": {"true"}}

	var users []UserRepresentation
	if err := c.getJSON(ctx, "find_user", token, c.adminURL(q, "users"), &users); err != nil {
		return nil, err
	}
	if len(users) == 0 || users[0].ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return &users[0], nil
}

// FindUserID возвращает ID пользователя по username.
func (c *Client) FindUserID(ctx context.Context, token, username string) (string, error) {
	user, err := c.FindUserByUsername(ctx, token, username)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
