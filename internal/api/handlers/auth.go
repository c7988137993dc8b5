// auth.go — обработчики /api/v1/auth: вход по политике "сначала
// локальная БД", обновление и проверка токенов, проверка пользователя
// и соединения с Keycloak.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/identity-module/internal/api/errors"
	"github.com/bigkaa/goartstore/identity-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/oidc"
	"github.com/bigkaa/goartstore/identity-module/internal/service"
)

const loginTypeDBFirst = "DB_FIRST_SUCCESS"

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type userInfo struct {
	UserSeq        int64   `json:"user_seq"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	KeycloakUserID *string `json:"keycloak_user_id"`
	LastLogin      string  `json:"last_login"`
}

type loginResponse struct {
	TokenInfo *oidc.TokenBundle `json:"token_info"`
	UserInfo  userInfo          `json:"user_info"`
	LoginType string            `json:"login_type"`
}

// Login — POST /api/v1/auth/login.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.login.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeLoginError(w, req.Username, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		TokenInfo: res.Token,
		UserInfo:  mapUserInfo(res.User),
		LoginType: loginTypeDBFirst,
	})
}

// writeLoginError отображает класс ошибки входа на статус и код ответа.
func (h *APIHandler) writeLoginError(w http.ResponseWriter, username string, err error) {
	fields := map[string]any{"username": username}
	msg := apierrors.Message(err)

	switch service.Classify(err) {
	case service.KindValidation:
		apierrors.WriteErrorWith(w, http.StatusBadRequest, apierrors.CodeValidationError, msg, fields)
	case service.KindNotProvisioned:
		fields["action_required"] = "SIGNUP"
		fields["signup_endpoint"] = h.login.SignupEndpoint()
		apierrors.WriteErrorWith(w, http.StatusNotFound, apierrors.CodeUserNotRegistered, msg, fields)
	case service.KindDisabled:
		apierrors.WriteErrorWith(w, http.StatusForbidden, apierrors.CodeUserDisabled, msg, fields)
	case service.KindProviderRejected:
		apierrors.WriteErrorWith(w, http.StatusUnauthorized, apierrors.CodeKeycloakAuthFailed, msg, fields)
	case service.KindProviderUnavailable:
		apierrors.WriteErrorWith(w, http.StatusServiceUnavailable, apierrors.CodeKeycloakDown, msg, fields)
	case service.KindInternal:
		h.logger.Error("Ошибка входа", "username", username, "error", err)
		apierrors.WriteErrorWith(w, http.StatusInternalServerError, apierrors.CodeInternalError, msg, fields)
	default:
		apierrors.WriteErrorWith(w, http.StatusBadRequest, apierrors.CodeTokenRequestFailed, msg, fields)
	}
}

// RefreshToken — POST /api/v1/auth/refresh.
func (h *APIHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := h.decode(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	tok, err := h.login.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeLoginError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

type validateResponse struct {
	Valid     bool      `json:"valid"`
	Message   string    `json:"message"`
	Subject   string    `json:"subject"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidateToken — POST /api/v1/auth/validate с заголовком Authorization: Bearer.
func (h *APIHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		apierrors.Unauthorized(w, "Ожидается заголовок Authorization: Bearer <token>")
		return
	}
	if h.tokens == nil {
		apierrors.Unauthorized(w, "Проверка токенов не настроена")
		return
	}

	claims, err := h.tokens.Validate(r.Context(), token)
	if err != nil {
		apierrors.Unauthorized(w, "Невалидный или просроченный токен")
		return
	}

	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:     true,
		Message:   "Token is valid",
		Subject:   claims.Subject,
		Username:  claims.PreferredUsername,
		Email:     claims.Email,
		Roles:     roles,
		ExpiresAt: claims.ExpiresAt,
	})
}

type userCheckResponse struct {
	Exists         bool   `json:"exists"`
	Username       string `json:"username"`
	Action         string `json:"action"`
	UserSeq        int64  `json:"user_seq,omitempty"`
	Email          string `json:"email,omitempty"`
	Enabled        *bool  `json:"enabled,omitempty"`
	Role           string `json:"role,omitempty"`
	HasKeycloakID  *bool  `json:"has_keycloak_id,omitempty"`
	SignupEndpoint string `json:"signup_endpoint,omitempty"`
}

// CheckUser — GET /api/v1/auth/user-check/{username}. Всегда 200, кроме сбоя БД.
func (h *APIHandler) CheckUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	user, exists, err := h.login.CheckUser(r.Context(), username)
	if err != nil {
		h.logger.Error("Ошибка проверки пользователя", "username", username, "error", err)
		apierrors.WriteErrorWith(w, http.StatusInternalServerError, apierrors.CodeCheckFailed,
			"не удалось проверить пользователя", map[string]any{"username": username})
		return
	}

	resp := userCheckResponse{Exists: exists, Username: username}
	if !exists {
		resp.Action = "SIGNUP_REQUIRED"
		resp.SignupEndpoint = h.login.SignupEndpoint()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	hasID := user.KeycloakUserID != nil
	resp.Action = "LOGIN_AVAILABLE"
	resp.UserSeq = user.ID
	resp.Email = user.Email
	resp.Enabled = &user.Enabled
	resp.Role = user.Role
	resp.HasKeycloakID = &hasID
	writeJSON(w, http.StatusOK, resp)
}

type testConnectionResponse struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Discovery *oidc.Discovery `json:"discovery"`
}

// TestConnection — GET /api/v1/auth/test-connection.
func (h *APIHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	d, err := h.login.TestConnection(r.Context())
	if err != nil {
		apierrors.IDPUnavailable(w, apierrors.Message(err))
		return
	}
	writeJSON(w, http.StatusOK, testConnectionResponse{
		Status:    "ok",
		Message:   "Keycloak доступен",
		Discovery: d,
	})
}

func mapUserInfo(u *model.User) userInfo {
	return userInfo{
		UserSeq:        u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Role:           u.Role,
		KeycloakUserID: u.KeycloakUserID,
		LastLogin:      u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
