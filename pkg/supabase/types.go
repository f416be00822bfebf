package supabase

import (
	"fmt"
	"time"
)

// User mirrors the GoTrue user object. Only a handful of fields are read by
// this service; the rest are kept for callers that want to echo them back.
type User struct {
	ID               string                 `json:"id"`
	Aud              string                 `json:"aud,omitempty"`
	Role             string                 `json:"role,omitempty"`
	Email            string                 `json:"email"`
	EmailConfirmedAt *time.Time             `json:"email_confirmed_at,omitempty"`
	ConfirmedAt      *time.Time             `json:"confirmed_at,omitempty"`
	LastSignInAt     *time.Time             `json:"last_sign_in_at,omitempty"`
	UserMetadata     map[string]interface{} `json:"user_metadata,omitempty"`
	CreatedAt        *time.Time             `json:"created_at,omitempty"`
	UpdatedAt        *time.Time             `json:"updated_at,omitempty"`
}

// EmailConfirmed reports whether the hosted auth has stamped a confirmation time.
func (u *User) EmailConfirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil
}

// Session is the token bundle returned by /token and /signup.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Expired reports whether the access token is past its expiry at now.
// A session without expiry information is treated as live.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt == 0 {
		return false
	}
	return now.Unix() >= s.ExpiresAt
}

// normalize fills ExpiresAt from ExpiresIn when the server omitted it.
func (s *Session) normalize(now time.Time) {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = now.Unix() + s.ExpiresIn
	}
	if s.TokenType == "" {
		s.TokenType = "bearer"
	}
}

// AuthError is a non-2xx answer from the GoTrue endpoints.
type AuthError struct {
	Status  int    `json:"-"`
	Code    string `json:"error_code,omitempty"`
	Message string `json:"msg,omitempty"`
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth request failed with status %d", e.Status)
	}
	return e.Message
}

// errorBody covers the different error shapes GoTrue has used over time.
type errorBody struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
}

func (b errorBody) toAuthError(status int) *AuthError {
	msg := b.Msg
	if msg == "" {
		msg = b.ErrorDescription
	}
	if msg == "" {
		msg = b.Message
	}
	if msg == "" {
		msg = b.Error
	}
	return &AuthError{Status: status, Code: b.ErrorCode, Message: msg}
}
