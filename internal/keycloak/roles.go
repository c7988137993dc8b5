package keycloak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/rbac"
)

// resolveConcurrency ограничивает число одновременных запросов
// при разрешении имён ролей.
const resolveConcurrency = 8

// CreateRole создаёт realm-роль. Если роль уже существует, возвращается
// *APIError, для которого IsConflict() == true.
func (c *Client) CreateRole(ctx context.Context, token, name, description string) (*model.RoleDescriptor, error) {
	_, err := c.doJSON(ctx, "create_role", http.MethodPost, token,
		c.adminURL(nil, "roles"), RoleRepresentation{Name: name, Description: description})
	if err != nil {
		return nil, err
	}

	desc := &model.RoleDescriptor{Name: name, Description: description}
	role, err := c.GetRealmRole(ctx, token, name)
	if err != nil {
		c.logger.Warn("Роль создана, но её ID не получен",
			slog.String("role", name),
			slog.String("error", err.Error()),
		)
		return desc, nil
	}
	desc.ID = role.ID
	return desc, nil
}

// GetRealmRole возвращает realm-роль по имени. Отсутствующая роль даёт
// *APIError со статусом 404.
func (c *Client) GetRealmRole(ctx context.Context, token, name string) (*RoleRepresentation, error) {
	var role RoleRepresentation
	if err := c.getJSON(ctx, "get_role", token, c.adminURL(nil, "roles", name), &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// CreateDefaultRoleSet создаёт базовые роли admin, user, manager.
// Ошибки только логируются: повторный запуск безопасен.
func (c *Client) CreateDefaultRoleSet(ctx context.Context, token string) {
	for _, r := range rbac.DefaultRealmRoles {
		_, err := c.CreateRole(ctx, token, r.Name, r.Description)
		switch {
		case err == nil:
			c.logger.Info("Базовая роль создана", slog.String("role", r.Name))
		case IsConflict(err):
			c.logger.Info("Базовая роль уже существует", slog.String("role", r.Name))
		default:
			c.logger.Warn("Не удалось создать базовую роль",
				slog.String("role", r.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// accountClientRoles возвращает UUID account-клиента и его роли по имени.
func (c *Client) accountClientRoles(ctx context.Context, token string) (string, map[string]RoleRepresentation, error) {
	clientUUID, err := c.accountClientUUID(ctx, token)
	if err != nil {
		return "", nil, err
	}

	var roles []RoleRepresentation
	if err := c.getJSON(ctx, "list_client_roles", token,
		c.adminURL(nil, "clients", clientUUID, "roles"), &roles); err != nil {
		return "", nil, err
	}

	byName := make(map[string]RoleRepresentation, len(roles))
	for _, r := range roles {
		byName[r.Name] = r
	}
	return clientUUID, byName, nil
}

func (c *Client) accountClientUUID(ctx context.Context, token string) (string, error) {
	q := url.Values{"clientId": {c.cfg.AccountClientID}}

	var clients []ClientRepresentation
	if err := c.getJSON(ctx, "find_client", token, c.adminURL(q, "clients"), &clients); err != nil {
		return "", err
	}
	for _, cl := range clients {
		if cl.ClientID == c.cfg.AccountClientID {
			return cl.ID, nil
		}
	}
	return "", fmt.Errorf("клиент %s не найден в realm %s", c.cfg.AccountClientID, c.cfg.Realm)
}

// AssignRolesToUser разрешает имена ролей параллельно: сначала как
// realm-роль, затем среди ролей account-клиента. Неразрешённые имена
// пропускаются с предупреждением. Найденные роли назначаются двумя
// пакетными запросами (realm и client). Возвращает назначенные имена.
func (c *Client) AssignRolesToUser(ctx context.Context, token, userID string, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	clientUUID, clientRoles, err := c.accountClientRoles(ctx, token)
	if err != nil {
		c.logger.Warn("Роли account-клиента недоступны, используются только realm-роли",
			slog.String("error", err.Error()),
		)
	}

	type resolved struct {
		role   RoleRepresentation
		client bool
	}
	results := make([]*resolved, len(names))

	var g errgroup.Group
	g.SetLimit(resolveConcurrency)
	for i, name := range names {
		g.Go(func() error {
			role, err := c.GetRealmRole(ctx, token, name)
			if err == nil {
				results[i] = &resolved{role: *role}
				return nil
			}
			if !IsNotFound(err) {
				c.logger.Warn("Ошибка поиска realm-роли",
					slog.String("role", name),
					slog.String("error", err.Error()),
				)
			}
			if r, ok := clientRoles[name]; ok {
				results[i] = &resolved{role: r, client: true}
				return nil
			}
			c.logger.Warn("Роль не найдена, пропускается",
				slog.String("role", name),
				slog.String("keycloak_user_id", userID),
			)
			return nil
		})
	}
	_ = g.Wait()

	var realmBatch, clientBatch []RoleRepresentation
	seen := make(map[string]struct{}, len(names))
	for _, r := range results {
		if r == nil {
			continue
		}
		if _, dup := seen[r.role.Name]; dup {
			continue
		}
		seen[r.role.Name] = struct{}{}
		if r.client {
			clientBatch = append(clientBatch, r.role)
		} else {
			realmBatch = append(realmBatch, r.role)
		}
	}

	if len(realmBatch) == 0 && len(clientBatch) == 0 {
		c.logger.Warn("Ни одна роль не разрешена, назначение пропущено",
			slog.String("keycloak_user_id", userID),
			slog.Any("roles", names),
		)
		return nil, nil
	}

	var assigned []string
	var errs []error
	if len(realmBatch) > 0 {
		if _, err := c.doJSON(ctx, "assign_realm_roles", http.MethodPost, token,
			c.adminURL(nil, "users", userID, "role-mappings", "realm"), realmBatch); err != nil {
			errs = append(errs, err)
		} else {
			assigned = append(assigned, roleNames(realmBatch)...)
		}
	}
	if len(clientBatch) > 0 {
		if _, err := c.doJSON(ctx, "assign_client_roles", http.MethodPost, token,
			c.adminURL(nil, "users", userID, "role-mappings", "clients", clientUUID), clientBatch); err != nil {
			errs = append(errs, err)
		} else {
			assigned = append(assigned, roleNames(clientBatch)...)
		}
	}

	c.logger.Info("Роли назначены",
		slog.String("keycloak_user_id", userID),
		slog.Any("roles", assigned),
	)
	return assigned, errors.Join(errs...)
}

// GetUserRealmRoles возвращает realm-роли, назначенные пользователю напрямую.
func (c *Client) GetUserRealmRoles(ctx context.Context, token, userID string) ([]RoleRepresentation, error) {
	var roles []RoleRepresentation
	err := c.getJSON(ctx, "get_user_realm_roles", token,
		c.adminURL(nil, "users", userID, "role-mappings", "realm"), &roles)
	return roles, err
}

// GetUserClientRoles возвращает роли account-клиента, назначенные пользователю.
func (c *Client) GetUserClientRoles(ctx context.Context, token, userID string) ([]RoleRepresentation, error) {
	clientUUID, err := c.accountClientUUID(ctx, token)
	if err != nil {
		return nil, err
	}
	var roles []RoleRepresentation
	err = c.getJSON(ctx, "get_user_client_roles", token,
		c.adminURL(nil, "users", userID, "role-mappings", "clients", clientUUID), &roles)
	return roles, err
}

// RemoveUserRealmRoles снимает realm-роли с пользователя.
func (c *Client) RemoveUserRealmRoles(ctx context.Context, token, userID string, roles []RoleRepresentation) error {
	if len(roles) == 0 {
		return nil
	}
	_, err := c.doJSON(ctx, "remove_realm_roles", http.MethodDelete, token,
		c.adminURL(nil, "users", userID, "role-mappings", "realm"), roles)
	return err
}

// ReplaceUserRealmRoles снимает текущие realm-роли и назначает новые.
// Ошибки снятия логируются, назначение выполняется в любом случае.
func (c *Client) ReplaceUserRealmRoles(ctx context.Context, token, userID string, names []string) ([]string, error) {
	current, err := c.GetUserRealmRoles(ctx, token, userID)
	if err != nil {
		c.logger.Warn("Не удалось получить текущие роли, снятие пропущено",
			slog.String("keycloak_user_id", userID),
			slog.String("error", err.Error()),
		)
	} else if err := c.RemoveUserRealmRoles(ctx, token, userID, current); err != nil {
		c.logger.Warn("Не удалось снять текущие роли",
			slog.String("keycloak_user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return c.AssignRolesToUser(ctx, token, userID, names)
}

func roleNames(roles []RoleRepresentation) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names
}
