// users.go — обработчики /api/v1/users: CRUD локальных записей без
// привязки к Keycloak. Доступ ограничивается JWT middleware в server.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/identity-module/internal/api/errors"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

type createLocalUserRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=USER MANAGER ADMIN user manager admin"`
}

type updateLocalUserRequest struct {
	Username *string `json:"username" validate:"omitempty,min=1,max=100"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Role     *string `json:"role" validate:"omitempty,oneof=USER MANAGER ADMIN user manager admin"`
	Enabled  *bool   `json:"enabled"`
}

type localUser struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Enabled        bool      `json:"enabled"`
	KeycloakUserID *string   `json:"keycloak_user_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type localUserList struct {
	Items   []localUser `json:"items"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// ListUsers — GET /api/v1/users.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationDefaults(r)

	users, total, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения списка пользователей", "error", err)
		apierrors.FromService(w, err, map[string]any{"limit": limit, "offset": offset})
		return
	}

	items := make([]localUser, len(users))
	for i, u := range users {
		items[i] = mapLocalUser(u)
	}
	writeJSON(w, http.StatusOK, localUserList{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	})
}

// GetUser — GET /api/v1/users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		apierrors.FromService(w, err, userFields(id, nil))
		return
	}
	writeJSON(w, http.StatusOK, mapLocalUser(user))
}

// CreateLocalUser — POST /api/v1/users.
func (h *APIHandler) CreateLocalUser(w http.ResponseWriter, r *http.Request) {
	var req createLocalUserRequest
	if err := h.decode(r, &req); err != nil {
		apierrors.WriteErrorWith(w, http.StatusBadRequest, apierrors.CodeValidationError, err.Error(),
			map[string]any{"username": req.Username})
		return
	}

	user, err := h.users.Create(r.Context(), req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		apierrors.FromService(w, err, map[string]any{"username": req.Username})
		return
	}
	writeJSON(w, http.StatusCreated, mapLocalUser(user))
}

// UpdateLocalUser — PUT /api/v1/users/{id}.
func (h *APIHandler) UpdateLocalUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req updateLocalUserRequest
	if err := h.decode(r, &req); err != nil {
		apierrors.WriteErrorWith(w, http.StatusBadRequest, apierrors.CodeValidationError, err.Error(),
			userFields(id, req.Username))
		return
	}

	user, err := h.users.Update(r.Context(), id, model.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
		Enabled:  req.Enabled,
	})
	if err != nil {
		apierrors.FromService(w, err, userFields(id, req.Username))
		return
	}
	writeJSON(w, http.StatusOK, mapLocalUser(user))
}

// DeleteLocalUser — DELETE /api/v1/users/{id}.
func (h *APIHandler) DeleteLocalUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		apierrors.FromService(w, err, userFields(id, nil))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		apierrors.WriteErrorWith(w, http.StatusBadRequest, apierrors.CodeValidationError,
			"id должен быть положительным целым числом", map[string]any{"user_seq": raw})
		return 0, false
	}
	return id, true
}

// userFields — контекст ошибки для операций над локальной записью.
func userFields(id int64, username *string) map[string]any {
	fields := map[string]any{"user_seq": id}
	if username != nil {
		fields["username"] = *username
	}
	return fields
}

func mapLocalUser(u *model.User) localUser {
	return localUser{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Role:           u.Role,
		Enabled:        u.Enabled,
		KeycloakUserID: u.KeycloakUserID,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}
