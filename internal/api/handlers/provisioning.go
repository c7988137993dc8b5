// provisioning.go — обработчики /api/v1/users/create*: создание
// пользователя в Keycloak с ролями и группами и локальным зеркалом.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/bigkaa/goartstore/identity-module/internal/api/errors"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/service"
)

type provisioningRequest struct {
	Username      string   `json:"username" validate:"required,max=100"`
	Email         string   `json:"email" validate:"required,email,max=255"`
	Password      string   `json:"password" validate:"required"`
	FirstName     string   `json:"firstName"`
	LastName      string   `json:"lastName"`
	Enabled       *bool    `json:"enabled"`
	EmailVerified *bool    `json:"emailVerified"`
	Roles         []string `json:"roles" validate:"dive,required"`
	Groups        []string `json:"groups" validate:"dive,required"`
}

type provisioningResponse struct {
	Success        bool       `json:"success"`
	KeycloakUserID string     `json:"keycloakUserId,omitempty"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	AssignedRoles  []string   `json:"assignedRoles"`
	AssignedGroups []string   `json:"assignedGroups"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	Message        string     `json:"message"`
	SyncWarning    bool       `json:"syncWarning,omitempty"`
	ErrorCode      string     `json:"errorCode,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
}

// CreateUser — POST /api/v1/users/create.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req provisioningRequest
	if err := h.decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, provisioningResponse{
			Username:     req.Username,
			Email:        req.Email,
			Message:      "Не удалось создать пользователя",
			ErrorCode:    string(service.KindValidation),
			ErrorMessage: err.Error(),
		})
		return
	}

	res, err := h.provisioning.Provision(r.Context(), model.ProvisioningRequest{
		Username:      req.Username,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Password:      req.Password,
		Enabled:       boolOrTrue(req.Enabled),
		EmailVerified: boolOrTrue(req.EmailVerified),
		Roles:         req.Roles,
		Groups:        req.Groups,
	})
	h.writeProvisioning(w, res, err)
}

// CreatePulsarSystemUser — POST /api/v1/users/create-pulsar-system?username&email&password.
func (h *APIHandler) CreatePulsarSystemUser(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.provisioning.ProvisionPulsarSystem(r.Context(), q.Get("username"), q.Get("email"), q.Get("password"))
	h.writeProvisioning(w, res, err)
}

type adminHealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UsersAdminHealth — GET /api/v1/users/admin/health.
func (h *APIHandler) UsersAdminHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.provisioning.CheckAdminAccess(r.Context()); err != nil {
		apierrors.IDPUnavailable(w, apierrors.Message(err))
		return
	}
	writeJSON(w, http.StatusOK, adminHealthResponse{Status: "ok", Message: "Keycloak admin API доступен"})
}

func (h *APIHandler) writeProvisioning(w http.ResponseWriter, res *model.ProvisioningResult, err error) {
	status := http.StatusCreated
	if err != nil {
		status = service.HTTPStatus(service.Classify(err))
	}
	writeJSON(w, status, mapProvisioningResult(res))
}

func mapProvisioningResult(res *model.ProvisioningResult) provisioningResponse {
	resp := provisioningResponse{
		Success:        res.Success,
		KeycloakUserID: res.KeycloakUserID,
		Username:       res.Username,
		Email:          res.Email,
		AssignedRoles:  res.AssignedRoles,
		AssignedGroups: res.AssignedGroups,
		Message:        res.Message,
		SyncWarning:    res.SyncWarning,
		ErrorCode:      res.ErrorCode,
		ErrorMessage:   res.ErrorMessage,
	}
	if !res.CreatedAt.IsZero() {
		resp.CreatedAt = &res.CreatedAt
	}
	if resp.AssignedRoles == nil {
		resp.AssignedRoles = []string{}
	}
	if resp.AssignedGroups == nil {
		resp.AssignedGroups = []string{}
	}
	return resp
}

func boolOrTrue(v *bool) bool {
	return v == nil || *v
}
