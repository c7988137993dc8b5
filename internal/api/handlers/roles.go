// roles.go — обработчики /api/v1/roles: realm-роли и роли пользователей Keycloak.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/identity-module/internal/api/errors"
	"github.com/bigkaa/goartstore/identity-module/internal/service"
)

type createRoleRequest struct {
	RoleName    string `json:"roleName" validate:"required,max=255"`
	Description string `json:"description"`
}

type assignRolesRequest struct {
	Username            string   `json:"username" validate:"required"`
	Roles               []string `json:"roles" validate:"required,min=1,dive,required"`
	RemoveExistingRoles bool     `json:"removeExistingRoles"`
}

// roleResult — ответ операций над ролями.
type roleResult struct {
	Success       bool     `json:"success"`
	RoleName      string   `json:"roleName,omitempty"`
	RoleID        string   `json:"roleId,omitempty"`
	Description   string   `json:"description,omitempty"`
	Username      string   `json:"username,omitempty"`
	AssignedRoles []string `json:"assignedRoles,omitempty"`
	ResponseTime  int64    `json:"responseTime"`
	Message       string   `json:"message,omitempty"`
	ErrorCode     string   `json:"errorCode,omitempty"`
	ErrorMessage  string   `json:"errorMessage,omitempty"`
}

type roleSnapshotResponse struct {
	Success        bool         `json:"success"`
	Username       string       `json:"username"`
	KeycloakUserID string       `json:"keycloakUserId,omitempty"`
	RealmRoles     []string     `json:"realmRoles"`
	ClientRoles    []string     `json:"clientRoles"`
	AllRoles       []string     `json:"allRoles"`
	Groups         []string     `json:"groups"`
	Access         *accessFlags `json:"access,omitempty"`
	ResponseTime   int64        `json:"responseTime"`
	Message        string       `json:"message,omitempty"`
	ErrorCode      string       `json:"errorCode,omitempty"`
	ErrorMessage   string       `json:"errorMessage,omitempty"`
}

// CreateRole — POST /api/v1/roles/create.
func (h *APIHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req createRoleRequest
	if err := h.decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, roleResult{
			RoleName:     req.RoleName,
			ResponseTime: time.Since(start).Milliseconds(),
			ErrorCode:    string(service.KindValidation),
			ErrorMessage: err.Error(),
		})
		return
	}

	role, err := h.roles.CreateRole(r.Context(), req.RoleName, req.Description)
	if err != nil {
		h.writeRoleError(w, start, roleResult{RoleName: req.RoleName}, err)
		return
	}

	writeJSON(w, http.StatusCreated, roleResult{
		Success:      true,
		RoleName:     role.Name,
		RoleID:       role.ID,
		Description:  role.Description,
		ResponseTime: time.Since(start).Milliseconds(),
		Message:      "Роль создана",
	})
}

// CreateDefaultRoles — POST /api/v1/roles/create-defaults.
func (h *APIHandler) CreateDefaultRoles(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := h.roles.CreateDefaultRoles(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, roleResult{
			ResponseTime: time.Since(start).Milliseconds(),
			ErrorCode:    string(service.Classify(err)),
			ErrorMessage: apierrors.Message(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, roleResult{
		Success:      true,
		ResponseTime: time.Since(start).Milliseconds(),
		Message:      "Набор ролей по умолчанию создан",
	})
}

// AssignRoles — POST /api/v1/roles/assign.
func (h *APIHandler) AssignRoles(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req assignRolesRequest
	if err := h.decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, roleResult{
			Username:     req.Username,
			ResponseTime: time.Since(start).Milliseconds(),
			ErrorCode:    string(service.KindValidation),
			ErrorMessage: err.Error(),
		})
		return
	}

	assigned, err := h.roles.AssignRoles(r.Context(), req.Username, req.Roles, req.RemoveExistingRoles)
	if err != nil {
		h.writeRoleError(w, start, roleResult{Username: req.Username, AssignedRoles: assigned}, err)
		return
	}

	if assigned == nil {
		assigned = []string{}
	}
	writeJSON(w, http.StatusOK, roleResult{
		Success:       true,
		Username:      req.Username,
		AssignedRoles: assigned,
		ResponseTime:  time.Since(start).Milliseconds(),
		Message:       "Роли назначены",
	})
}

// GetUserRoles — GET /api/v1/roles/user/{username}.
func (h *APIHandler) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	username := chi.URLParam(r, "username")

	snap, err := h.roles.GetUserRoles(r.Context(), username)
	if err != nil {
		kind := service.Classify(err)
		writeJSON(w, roleStatus(kind), roleSnapshotResponse{
			Username:     username,
			RealmRoles:   []string{},
			ClientRoles:  []string{},
			AllRoles:     []string{},
			Groups:       []string{},
			ResponseTime: time.Since(start).Milliseconds(),
			ErrorCode:    string(kind),
			ErrorMessage: apierrors.Message(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, roleSnapshotResponse{
		Success:        true,
		Username:       snap.Username,
		KeycloakUserID: snap.KeycloakUserID,
		RealmRoles:     snap.RealmRoles,
		ClientRoles:    snap.ClientRoles,
		AllRoles:       snap.AllRoles(),
		Groups:         snap.Groups,
		Access:         accessFromSnapshot(snap),
		ResponseTime:   time.Since(start).Milliseconds(),
		Message:        "Роли пользователя получены",
	})
}

// RolesAdminHealth — GET /api/v1/roles/admin/health.
func (h *APIHandler) RolesAdminHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.CheckAdminAccess(r.Context()); err != nil {
		apierrors.IDPUnavailable(w, apierrors.Message(err))
		return
	}
	writeJSON(w, http.StatusOK, adminHealthResponse{Status: "ok", Message: "Keycloak admin API доступен"})
}

func (h *APIHandler) writeRoleError(w http.ResponseWriter, start time.Time, res roleResult, err error) {
	kind := service.Classify(err)
	if kind == service.KindInternal {
		h.logger.Error("Ошибка операции с ролями", "error", err)
	}
	res.ResponseTime = time.Since(start).Milliseconds()
	res.ErrorCode = string(kind)
	res.ErrorMessage = apierrors.Message(err)
	writeJSON(w, roleStatus(kind), res)
}

// roleStatus — статус для ошибок ролей: недоступность Keycloak отдаётся как 500.
func roleStatus(kind service.Kind) int {
	if kind == service.KindProviderUnavailable {
		return http.StatusInternalServerError
	}
	return service.HTTPStatus(kind)
}
