// access.go — ролевые endpoints: открытый, для любого владельца токена
// и закрытые realm-ролями user, manager, admin. Ответ строится из claims,
// которые положил в контекст JWT middleware.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/bigkaa/goartstore/identity-module/internal/api/errors"
	"github.com/bigkaa/goartstore/identity-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

const accessStatusSuccess = "success"

// accessFlags — какие ролевые разделы доступны владельцу токена.
type accessFlags struct {
	User    bool `json:"user"`
	Manager bool `json:"manager"`
	Admin   bool `json:"admin"`
}

type accessResponse struct {
	Message   string         `json:"message"`
	Status    string         `json:"status"`
	Endpoint  string         `json:"endpoint"`
	Timestamp int64          `json:"timestamp"`
	User      string         `json:"user,omitempty"`
	Subject   string         `json:"subject,omitempty"`
	Email     string         `json:"email,omitempty"`
	Issuer    string         `json:"issuer,omitempty"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	Roles     []string       `json:"roles,omitempty"`
	Access    *accessFlags   `json:"access,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// PublicHello — GET /api/v1/public/hello, без аутентификации.
func (h *APIHandler) PublicHello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, accessResponse{
		Message:   "Hello from public endpoint!",
		Status:    accessStatusSuccess,
		Endpoint:  "/public/hello",
		Timestamp: time.Now().UnixMilli(),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

// ProtectedInfo — GET /api/v1/protected/info, любой валидный токен.
func (h *APIHandler) ProtectedInfo(w http.ResponseWriter, r *http.Request) {
	h.writeAccess(w, r, "/protected/info", "This is a protected endpoint", func(resp *accessResponse, c *middleware.AuthClaims) {
		resp.Issuer = c.Issuer
		if !c.ExpiresAt.IsZero() {
			exp := c.ExpiresAt.UTC()
			resp.ExpiresAt = &exp
		}
	})
}

// UserProfile — GET /api/v1/user/profile, роль user.
func (h *APIHandler) UserProfile(w http.ResponseWriter, r *http.Request) {
	h.writeAccess(w, r, "/user/profile", "Hello from user endpoint!", nil)
}

// UserSettings — GET /api/v1/user/settings, роль user.
func (h *APIHandler) UserSettings(w http.ResponseWriter, r *http.Request) {
	h.writeAccess(w, r, "/user/settings", "User settings endpoint", func(resp *accessResponse, _ *middleware.AuthClaims) {
		resp.Details = map[string]any{
			"notifications": true,
			"theme":         "light",
			"language":      "ru",
			"timezone":      "Europe/Moscow",
		}
	})
}

// AdminDashboard — GET /api/v1/admin/dashboard, роль admin.
func (h *APIHandler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	h.writeAccess(w, r, "/admin/dashboard", "Hello from admin dashboard!", func(resp *accessResponse, _ *middleware.AuthClaims) {
		resp.Details = map[string]any{
			"users":   "manage",
			"system":  "configure",
			"reports": "view_all",
		}
	})
}

// ManagerReports — GET /api/v1/manager/reports, роль manager.
func (h *APIHandler) ManagerReports(w http.ResponseWriter, r *http.Request) {
	h.writeAccess(w, r, "/manager/reports", "Hello from manager reports!", func(resp *accessResponse, _ *middleware.AuthClaims) {
		resp.Details = map[string]any{
			"monthly": "accessible",
			"team":    "accessible",
			"budget":  "accessible",
		}
	})
}

// writeAccess отвечает данными токена. Без claims в контексте (маршрут
// смонтирован без JWT middleware) отвечает 401.
func (h *APIHandler) writeAccess(
	w http.ResponseWriter,
	r *http.Request,
	endpoint, message string,
	extra func(*accessResponse, *middleware.AuthClaims),
) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	snap := &model.UserRoleSnapshot{
		Username:       claims.PreferredUsername,
		KeycloakUserID: claims.Subject,
		RealmRoles:     roles,
	}

	resp := accessResponse{
		Message:   message,
		Status:    accessStatusSuccess,
		Endpoint:  endpoint,
		Timestamp: time.Now().UnixMilli(),
		User:      claims.PreferredUsername,
		Subject:   claims.Subject,
		Email:     claims.Email,
		Roles:     roles,
		Access:    accessFromSnapshot(snap),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	}
	if extra != nil {
		extra(&resp, claims)
	}

	h.logger.Info("Доступ к ролевому endpoint",
		"endpoint", endpoint,
		"username", claims.PreferredUsername,
		"request_id", resp.RequestID,
	)
	writeJSON(w, http.StatusOK, resp)
}

func accessFromSnapshot(s *model.UserRoleSnapshot) *accessFlags {
	return &accessFlags{
		User:    s.HasUserRole(),
		Manager: s.HasManagerRole(),
		Admin:   s.HasAdminRole(),
	}
}
