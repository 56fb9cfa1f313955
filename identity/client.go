// Package identity is the HTTP client for the jobdeck identity backend.
// It covers only the auth surface (login, register, session exchange,
// profile verification, logout); the rest of the API is out of scope here.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SessionIDHeader carries the one-time session identifier during the
// session exchange. It travels out-of-band of the request body.
const SessionIDHeader = "X-Session-Id"

// Client is the identity backend API client.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokenSource func() string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource sets the function consulted for the current bearer token
// on calls that do not pass one explicitly. Wiring the session container's
// token getter here means a logout immediately strips the bearer from every
// subsequent request.
func WithTokenSource(source func() string) Option {
	return func(c *Client) { c.tokenSource = source }
}

// New creates a new identity client for the given backend base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges email and password for a bearer token and profile.
func (c *Client) Login(ctx context.Context, email, password string) (*Credentials, error) {
	body := map[string]string{"email": email, "password": password}
	var creds Credentials
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", "", body, &creds); err != nil {
		return nil, fmt.Errorf("identity.Login: %w", err)
	}
	return &creds, nil
}

// Register creates an account and returns its first session credentials.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Credentials, error) {
	var creds Credentials
	if err := c.doRequest(ctx, http.MethodPost, "/auth/register", "", req, &creds); err != nil {
		return nil, fmt.Errorf("identity.Register: %w", err)
	}
	return &creds, nil
}

// ExchangeSession trades a one-time session identifier for a durable bearer
// token and the user's profile. The identifier is sent in the
// X-Session-Id header, never in the body or URL.
func (c *Client) ExchangeSession(ctx context.Context, sessionID string) (*ExchangeResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/session", nil)
	if err != nil {
		return nil, fmt.Errorf("identity.ExchangeSession: %w", err)
	}
	req.Header.Set(SessionIDHeader, sessionID)

	var result ExchangeResult
	if err := c.send(req, &result); err != nil {
		return nil, fmt.Errorf("identity.ExchangeSession: %w", err)
	}
	return &result, nil
}

// Me verifies the bearer token and returns the current profile. A rejected
// token surfaces as an HTTPError with status 401 (see IsUnauthorized).
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var user User
	if err := c.doRequest(ctx, http.MethodGet, "/auth/me", token, nil, &user); err != nil {
		return nil, fmt.Errorf("identity.Me: %w", err)
	}
	return &user, nil
}

// Logout notifies the backend that the session is over. Best effort: the
// caller is expected to discard local state regardless of the outcome.
func (c *Client) Logout(ctx context.Context, token string) error {
	if err := c.doRequest(ctx, http.MethodPost, "/auth/logout", token, nil, nil); err != nil {
		return fmt.Errorf("identity.Logout: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doRequest(ctx context.Context, method, path, token string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if token == "" && c.tokenSource != nil {
		token = c.tokenSource()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
