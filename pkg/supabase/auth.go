package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthClient talks to the hosted GoTrue endpoints under /auth/v1.
// We call the REST API directly so request headers (apikey, forwarded IP)
// stay under our control.
type AuthClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

func NewAuthClient(projectURL, apiKey string, httpClient *http.Client) *AuthClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &AuthClient{
		// Sanitasi: hapus slash di akhir URL untuk mencegah double slash (.co//auth)
		baseURL:    strings.TrimRight(projectURL, "/") + "/auth/v1",
		apiKey:     apiKey,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// JWKSURL is where the project publishes its asymmetric signing keys.
func (a *AuthClient) JWKSURL() string {
	return a.baseURL + "/.well-known/jwks.json"
}

type signUpResponse struct {
	Session
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	EmailConfirmedAt *time.Time             `json:"email_confirmed_at"`
	UserMetadata     map[string]interface{} `json:"user_metadata"`
}

// SignUp registers an email/password user. When the project requires email
// confirmation GoTrue answers with the bare user and no session, so the
// returned session may be nil.
func (a *AuthClient) SignUp(ctx context.Context, email, password string, data map[string]interface{}) (*User, *Session, error) {
	body := map[string]interface{}{
		"email":    email,
		"password": password,
	}
	if len(data) > 0 {
		body["data"] = data
	}

	var resp signUpResponse
	if err := a.do(ctx, http.MethodPost, "/signup", nil, "", body, &resp); err != nil {
		return nil, nil, err
	}

	if resp.AccessToken != "" {
		session := resp.Session
		session.normalize(a.now())
		user := session.User
		return &user, &session, nil
	}

	user := &User{
		ID:               resp.ID,
		Email:            resp.Email,
		EmailConfirmedAt: resp.EmailConfirmedAt,
		UserMetadata:     resp.UserMetadata,
	}
	return user, nil, nil
}

// SignInWithPassword is POST /token?grant_type=password.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	q := url.Values{"grant_type": {"password"}}
	body := map[string]interface{}{
		"email":    email,
		"password": password,
	}
	return a.token(ctx, q, body)
}

// RefreshSession exchanges a refresh token for a new session.
func (a *AuthClient) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	q := url.Values{"grant_type": {"refresh_token"}}
	body := map[string]interface{}{
		"refresh_token": refreshToken,
	}
	return a.token(ctx, q, body)
}

func (a *AuthClient) token(ctx context.Context, q url.Values, body interface{}) (*Session, error) {
	var session Session
	if err := a.do(ctx, http.MethodPost, "/token", q, "", body, &session); err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, &AuthError{Status: http.StatusBadGateway, Message: "token response without access_token"}
	}
	session.normalize(a.now())
	return &session, nil
}

// SignOut revokes the refresh tokens tied to accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	return a.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil)
}

// ResetPasswordForEmail asks GoTrue to mail a recovery link.
// redirect_to must be a query parameter on /recover.
func (a *AuthClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var q url.Values
	if redirectTo != "" {
		q = url.Values{"redirect_to": {redirectTo}}
	}
	body := map[string]interface{}{
		"email": email,
	}
	return a.do(ctx, http.MethodPost, "/recover", q, "", body, nil)
}

// GetUser resolves the user behind an access token.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := a.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Ping checks that the auth service answers /health.
func (a *AuthClient) Ping(ctx context.Context) error {
	return a.do(ctx, http.MethodGet, "/health", nil, "", nil, nil)
}

func (a *AuthClient) do(ctx context.Context, method, path string, q url.Values, bearer string, in, out interface{}) error {
	endpoint := a.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var reader io.Reader
	if in != nil {
		jsonBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", a.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	if meta, ok := ForwardedFrom(ctx); ok {
		if meta.IP != "" {
			req.Header.Set("X-Forwarded-For", meta.IP)
		}
		if meta.UserAgent != "" {
			req.Header.Set("User-Agent", meta.UserAgent)
		}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return eb.toAuthError(resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type forwardedKey struct{}

// RequestMeta carries the end client's address to the hosted auth, which
// uses it for its own rate limiting and captcha checks.
type RequestMeta struct {
	IP        string
	UserAgent string
}

func WithForwarded(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, forwardedKey{}, meta)
}

func ForwardedFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(forwardedKey{}).(RequestMeta)
	return meta, ok
}
