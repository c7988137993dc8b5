// Пакет keycloak — HTTP-клиент к Keycloak: токен администратора
// и Admin REST API для пользователей, ролей и групп.
//
// Токен администратора не кэшируется: каждая операция верхнего уровня
// получает его заново через FetchAdminToken. Каждый HTTP-вызов ограничен
// таймаутом и повторяется только при сетевых ошибках.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config — параметры клиента Keycloak.
type Config struct {
	// BaseURL без trailing slash, например https://keycloak.kryukov.lan
	BaseURL string
	// Realm пользователей, ролей и групп
	Realm string
	// AdminRealm, AdminClientID, AdminUsername, AdminPassword — password grant администратора
	AdminRealm    string
	AdminClientID string
	AdminUsername string
	AdminPassword string
	// AccountClientID — client, чьи роли выдаются и попадают в снимок
	AccountClientID string
	// Timeout одного HTTP-вызова
	Timeout time.Duration
	// Retries — число повторов при сетевой ошибке
	Retries int
	// RetryBackoff — пауза перед повтором
	RetryBackoff time.Duration
}

// Client — клиент Keycloak. Потокобезопасен, общего изменяемого состояния не имеет.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент. httpClient может нести TLS-настройки (CA), его
// собственный Timeout не используется: таймаут задаётся на каждый вызов.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "keycloak_client")),
	}
}

// Realm возвращает realm пользователей.
func (c *Client) Realm() string {
	return c.cfg.Realm
}

// --- Токен администратора ---

func (c *Client) adminTokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token",
		c.cfg.BaseURL, url.PathEscape(c.cfg.AdminRealm))
}

// FetchAdminToken выполняет password grant администратора и возвращает
// access token. Результат не кэшируется.
func (c *Client) FetchAdminToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {c.cfg.AdminClientID},
		"username":   {c.cfg.AdminUsername},
		"password":   {c.cfg.AdminPassword},
	}

	resp, err := c.do(ctx, "admin_token", request{
		method:      http.MethodPost,
		url:         c.adminTokenEndpoint(),
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return "", err
	}

	var tok tokenResponse
	if err := json.Unmarshal(resp.body, &tok); err != nil {
		return "", fmt.Errorf("декодирование токена администратора: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("keycloak вернул пустой токен администратора")
	}
	return tok.AccessToken, nil
}

// --- HTTP ---

type request struct {
	method      string
	url         string
	token       string
	body        []byte
	contentType string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// adminURL собирает URL Admin REST API realm'а. Сегменты пути
// экранируются, query добавляется как есть.
func (c *Client) adminURL(query url.Values, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := fmt.Sprintf("%s/admin/realms/%s/%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.Realm), strings.Join(escaped, "/"))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// doJSON сериализует payload и выполняет авторизованный запрос.
func (c *Client) doJSON(ctx context.Context, op, method, token, u string, payload any) (*response, error) {
	req := request{method: method, url: u, token: token}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела %s: %w", op, err)
		}
		req.body = data
		req.contentType = "application/json"
	}
	return c.do(ctx, op, req)
}

// getJSON выполняет GET и декодирует ответ в target.
func (c *Client) getJSON(ctx context.Context, op, token, u string, target any) error {
	resp, err := c.doJSON(ctx, op, http.MethodGet, token, u, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.body, target); err != nil {
		return fmt.Errorf("декодирование ответа %s: %w", op, err)
	}
	return nil
}

// do выполняет запрос с таймаутом на попытку и повторами при сетевых
// ошибках. Ответ вне 2xx возвращается как *APIError и не повторяется.
func (c *Client) do(ctx context.Context, op string, req request) (*response, error) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Повтор запроса к Keycloak",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s: %w", ErrTransport, op, ctx.Err())
			case <-time.After(c.cfg.RetryBackoff):
			}
		}

		resp, err := c.attempt(ctx, req)
		if err == nil {
			if resp.status < 200 || resp.status >= 300 {
				requestsTotal.WithLabelValues(op, outcomeForStatus(resp.status)).Inc()
				return nil, newAPIError(op, resp.status, resp.body)
			}
			requestsTotal.WithLabelValues(op, outcomeOK).Inc()
			return resp, nil
		}

		lastErr = err
		if ctx.Err() != nil || !retryable(req.method, err) {
			break
		}
	}

	requestsTotal.WithLabelValues(op, outcomeTransport).Inc()
	return nil, fmt.Errorf("%w: %s: %w", ErrTransport, op, lastErr)
}

// attempt выполняет одну попытку и читает тело целиком, пока действует таймаут.
func (c *Client) attempt(ctx context.Context, req request) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа: %w", err)
	}
	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: data}, nil
}

// retryable решает, можно ли повторить запрос после сетевой ошибки.
// POST повторяется только если соединение не было установлено.
func retryable(method string, err error) bool {
	if method != http.MethodPost {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// idFromLocation извлекает ID созданного ресурса из заголовка Location.
func idFromLocation(h http.Header) string {
	loc := strings.TrimRight(h.Get("Location"), "/")
	if loc == "" {
		return ""
	}
	return loc[strings.LastIndex(loc, "/")+1:]
}
