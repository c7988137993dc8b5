package keycloak

// UserRepresentation — пользователь в Admin REST API.
type UserRepresentation struct {
	ID               string                     `json:"id,omitempty"`
	Username         string                     `json:"username"`
	Email            string                     `json:"email,omitempty"`
	FirstName        string                     `json:"firstName,omitempty"`
	LastName         string                     `json:"lastName,omitempty"`
	Enabled          bool                       `json:"enabled"`
	EmailVerified    bool                       `json:"emailVerified"`
	CreatedTimestamp int64                      `json:"createdTimestamp,omitempty"`
	Credentials      []CredentialRepresentation `json:"credentials,omitempty"`
}

// CredentialRepresentation — пароль пользователя при создании.
type CredentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"` //nolint:gosec // пароль передаётся только в Keycloak
	Temporary bool   `json:"temporary"`
}

// RoleRepresentation — realm- или client-роль.
type RoleRepresentation struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Composite   bool   `json:"composite,omitempty"`
	ClientRole  bool   `json:"clientRole,omitempty"`
	ContainerID string `json:"containerId,omitempty"`
}

// GroupRepresentation — группа realm'а.
type GroupRepresentation struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// ClientRepresentation — минимум полей клиента, нужный для поиска его UUID.
type ClientRepresentation struct {
	ID       string `json:"id"`
	ClientID string `json:"clientId"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // структура ответа OAuth2
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
