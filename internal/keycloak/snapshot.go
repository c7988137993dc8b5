package keycloak

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

// GetUserRoleSnapshot собирает realm-роли, роли account-клиента и группы
// пользователя. Каждая часть запрашивается отдельно и при ошибке остаётся
// пустой, снимок возвращается всегда.
func (c *Client) GetUserRoleSnapshot(ctx context.Context, token, userID string) *model.UserRoleSnapshot {
	snap := &model.UserRoleSnapshot{
		KeycloakUserID: userID,
		RealmRoles:     []string{},
		ClientRoles:    []string{},
		Groups:         []string{},
	}

	var g errgroup.Group
	g.Go(func() error {
		roles, err := c.GetUserRealmRoles(ctx, token, userID)
		if err != nil {
			c.logSnapshotPart("realm_roles", userID, err)
			return nil
		}
		snap.RealmRoles = roleNames(roles)
		return nil
	})
	g.Go(func() error {
		roles, err := c.GetUserClientRoles(ctx, token, userID)
		if err != nil {
			c.logSnapshotPart("client_roles", userID, err)
			return nil
		}
		snap.ClientRoles = roleNames(roles)
		return nil
	})
	g.Go(func() error {
		groups, err := c.GetUserGroups(ctx, token, userID)
		if err != nil {
			c.logSnapshotPart("groups", userID, err)
			return nil
		}
		names := make([]string, len(groups))
		for i, gr := range groups {
			names[i] = gr.Name
		}
		snap.Groups = names
		return nil
	})
	_ = g.Wait()

	return snap
}

func (c *Client) logSnapshotPart(part, userID string, err error) {
	c.logger.Warn("Часть снимка ролей недоступна",
		slog.String("part", part),
		slog.String("keycloak_user_id", userID),
		slog.String("error", err.Error()),
	)
}
