package keycloak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// FindGroupByName ищет группу верхнего уровня по точному имени.
// found == false, если такой группы нет.
func (c *Client) FindGroupByName(ctx context.Context, token, name string) (group GroupRepresentation, found bool, err error) {
	q := url.Values{"search": {name}}

	var groups []GroupRepresentation
	if err := c.getJSON(ctx, "find_group", token, c.adminURL(q, "groups"), &groups); err != nil {
		return GroupRepresentation{}, false, err
	}
	// search ищет по подстроке
	for _, g := range groups {
		if g.Name == name {
			return g, true, nil
		}
	}
	return GroupRepresentation{}, false, nil
}

// CreateGroup создаёт группу и возвращает её ID из заголовка Location.
func (c *Client) CreateGroup(ctx context.Context, token, name string) (string, error) {
	resp, err := c.doJSON(ctx, "create_group", http.MethodPost, token,
		c.adminURL(nil, "groups"), GroupRepresentation{Name: name})
	if err != nil {
		return "", err
	}
	if id := idFromLocation(resp.header); id != "" {
		return id, nil
	}

	g, found, err := c.FindGroupByName(ctx, token, name)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("группа %s создана, но не найдена", name)
	}
	return g.ID, nil
}

// ensureGroup возвращает ID существующей группы или создаёт её.
func (c *Client) ensureGroup(ctx context.Context, token, name string) (string, error) {
	g, found, err := c.FindGroupByName(ctx, token, name)
	if err != nil {
		return "", err
	}
	if found {
		return g.ID, nil
	}

	id, err := c.CreateGroup(ctx, token, name)
	if err != nil && IsConflict(err) {
		// Группу успели создать параллельно
		g, found, ferr := c.FindGroupByName(ctx, token, name)
		if ferr == nil && found {
			return g.ID, nil
		}
	}
	if err != nil {
		return "", err
	}
	c.logger.Info("Группа создана", slog.String("group", name), slog.String("group_id", id))
	return id, nil
}

// AddUserToGroup добавляет пользователя в группу.
func (c *Client) AddUserToGroup(ctx context.Context, token, userID, groupID string) error {
	_, err := c.doJSON(ctx, "add_user_to_group", http.MethodPut, token,
		c.adminURL(nil, "users", userID, "groups", groupID), nil)
	return err
}

// AssignGroupsToUser добавляет пользователя в каждую группу, создавая
// отсутствующие. Группы обрабатываются независимо: ошибка одной не
// прерывает остальные. Возвращает группы, в которые пользователь добавлен,
// и объединённую ошибку по остальным.
func (c *Client) AssignGroupsToUser(ctx context.Context, token, userID string, names []string) ([]string, error) {
	var assigned []string
	var errs []error

	for _, name := range names {
		groupID, err := c.ensureGroup(ctx, token, name)
		if err == nil {
			err = c.AddUserToGroup(ctx, token, userID, groupID)
		}
		if err != nil {
			c.logger.Warn("Не удалось добавить пользователя в группу",
				slog.String("group", name),
				slog.String("keycloak_user_id", userID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("группа %s: %w", name, err))
			continue
		}
		assigned = append(assigned, name)
	}

	return assigned, errors.Join(errs...)
}

// GetUserGroups возвращает группы пользователя.
func (c *Client) GetUserGroups(ctx context.Context, token, userID string) ([]GroupRepresentation, error) {
	var groups []GroupRepresentation
	err := c.getJSON(ctx, "get_user_groups", token, c.adminURL(nil, "users", userID, "groups"), &groups)
	return groups, err
}
