// Пакет oidc — клиент конечного пользователя к realm Keycloak:
// password grant, обновление токенов и discovery провайдера.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrTransport: token endpoint не ответил.
var ErrTransport = errors.New("token endpoint недоступен")

// Config — параметры клиента realm'а.
type Config struct {
	// KeycloakURL без trailing slash
	KeycloakURL  string
	Realm        string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// Timeout одного обращения к Keycloak
	Timeout time.Duration
}

// TokenBundle — ответ token endpoint в том виде, в котором его отдаёт Keycloak.
type TokenBundle struct {
	AccessToken      string `json:"access_token"` //nolint:gosec // структура ответа OAuth2
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	RefreshToken     string `json:"refresh_token"` //nolint:gosec // структура ответа OAuth2
	TokenType        string `json:"token_type"`
	IDToken          string `json:"id_token,omitempty"`
	NotBeforePolicy  int64  `json:"not-before-policy"`
	SessionState     string `json:"session_state,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

// TokenError — отказ token endpoint (ответ с кодом ошибки OAuth2).
type TokenError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *TokenError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint: %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("token endpoint: %d %s", e.StatusCode, e.Code)
}

// Discovery — основные поля OpenID Provider Metadata.
type Discovery struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserinfoEndpoint      string   `json:"userinfo_endpoint"`
	EndSessionEndpoint    string   `json:"end_session_endpoint,omitempty"`
	JWKSURI               string   `json:"jwks_uri"`
	GrantTypesSupported   []string `json:"grant_types_supported,omitempty"`
}

// Client выполняет запросы конечного пользователя к realm'у.
type Client struct {
	oauth      oauth2.Config
	realmURL   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент. httpClient может нести TLS-настройки.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	realmURL := fmt.Sprintf("%s/realms/%s", strings.TrimRight(cfg.KeycloakURL, "/"), cfg.Realm)
	base := realmURL + "/protocol/openid-connect"

	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/auth",
				TokenURL:  base + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		realmURL:   realmURL,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "oidc_client")),
	}
}

// RealmURL возвращает URL realm'а (issuer).
func (c *Client) RealmURL() string {
	return c.realmURL
}

func (c *Client) context(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return context.WithTimeout(ctx, c.timeout)
}

// PasswordGrant проверяет учётные данные пользователя через password grant.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (*TokenBundle, error) {
	ctx, cancel := c.context(ctx)
	defer cancel()

	tok, err := c.oauth.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return nil, c.wrapError("password grant", err)
	}
	return bundleFromToken(tok), nil
}

// Refresh обменивает refresh token на новую пару токенов.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	ctx, cancel := c.context(ctx)
	defer cancel()

	// Токен без access token всегда обновляется через endpoint
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, c.wrapError("refresh", err)
	}
	return bundleFromToken(tok), nil
}

// Discover выполняет OIDC discovery realm'а.
func (c *Client) Discover(ctx context.Context) (*Discovery, error) {
	ctx, cancel := context.WithTimeout(gooidc.ClientContext(ctx, c.httpClient), c.timeout)
	defer cancel()

	provider, err := gooidc.NewProvider(ctx, c.realmURL)
	if err != nil {
		return nil, fmt.Errorf("discovery %s: %w", c.realmURL, err)
	}

	var d Discovery
	if err := provider.Claims(&d); err != nil {
		return nil, fmt.Errorf("разбор discovery-документа: %w", err)
	}
	return &d, nil
}

// wrapError превращает *oauth2.RetrieveError в *TokenError,
// остальные ошибки считаются сетевыми.
func (c *Client) wrapError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		te := &TokenError{Code: re.ErrorCode, Description: re.ErrorDescription}
		if re.Response != nil {
			te.StatusCode = re.Response.StatusCode
		}
		c.logger.Debug("Keycloak отклонил запрос токена",
			slog.String("op", op),
			slog.Int("status", te.StatusCode),
			slog.String("code", te.Code),
		)
		return te
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func bundleFromToken(tok *oauth2.Token) *TokenBundle {
	b := &TokenBundle{
		AccessToken:      tok.AccessToken,
		TokenType:        tok.TokenType,
		RefreshToken:     tok.RefreshToken,
		ExpiresIn:        extraInt(tok, "expires_in"),
		RefreshExpiresIn: extraInt(tok, "refresh_expires_in"),
		NotBeforePolicy:  extraInt(tok, "not-before-policy"),
		SessionState:     extraString(tok, "session_state"),
		Scope:            extraString(tok, "scope"),
		IDToken:          extraString(tok, "id_token"),
	}
	if b.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		b.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	return b
}

func extraString(tok *oauth2.Token, key string) string {
	s, _ := tok.Extra(key).(string)
	return s
}

func extraInt(tok *oauth2.Token, key string) int64 {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
