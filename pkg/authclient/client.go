// Package authclient is the Go client for the coursava auth service. It
// bundles an HTTP API client, a process-wide session monitor with
// single-flight proactive refresh, and an http.RoundTripper that reacts
// to the service's token lifecycle headers.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 10 * time.Second

// Credentials identify a user at login. Identifier accepts email or
// username, mirroring the server contract.
type Credentials struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// TokenPair is an issued access/refresh pair. ExpiresIn is the access
// token lifetime in seconds at issue time.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// User is the profile summary returned alongside tokens.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// LoginResult carries the token pair and the authenticated user.
type LoginResult struct {
	TokenPair
	User User `json:"user"`
}

type logoutRequest struct {
	RefreshTokenID string `json:"refresh_token_id,omitempty"`
}

type logoutAllResponse struct {
	RevokedCount int64 `json:"revoked_count"`
}

type profileResponse struct {
	User User `json:"user"`
}

// Client talks to the auth service HTTP API. It performs no token state
// management itself; pair it with a Monitor for that.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient swaps the underlying http.Client. The client used here
// must not carry the reactive Transport, or a rejected refresh would
// recurse into another refresh.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithClientLogger attaches a logger for request-level diagnostics.
func WithClientLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient returns a Client rooted at baseURL, e.g.
// "https://auth.coursava.io". The versioned auth prefix is appended
// internally.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Login exchanges credentials for a token pair and the user profile.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", "", creds, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Refresh rotates the refresh token for a brand-new pair. The presented
// token is single-use; a second call with it fails with
// REFRESH_TOKEN_REUSED.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var pair TokenPair
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", "", body, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// Logout revokes the access token server-side. refreshTokenID optionally
// names the refresh record to retire in the same call; pass "" to revoke
// the access token only.
func (c *Client) Logout(ctx context.Context, accessToken, refreshTokenID string) error {
	var body any
	if refreshTokenID != "" {
		body = logoutRequest{RefreshTokenID: refreshTokenID}
	}
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", accessToken, body, nil)
}

// LogoutAll revokes every refresh token of the authenticated subject and
// returns how many sessions were ended.
func (c *Client) LogoutAll(ctx context.Context, accessToken string) (int64, error) {
	var result logoutAllResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/logout-all", accessToken, nil, &result); err != nil {
		return 0, err
	}
	return result.RevokedCount, nil
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context, accessToken string) (*User, error) {
	var result profileResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/profile", accessToken, nil, &result); err != nil {
		return nil, err
	}
	return &result.User, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<12))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil || json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	c.log.Debug("auth api rejected request",
		zap.Int("status", resp.StatusCode),
		zap.String("code", apiErr.Code),
	)
	return apiErr
}
