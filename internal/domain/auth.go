package domain

import "context"

// SignUpResult tells the caller whether the account is usable right away
// or still waits for email confirmation.
type SignUpResult struct {
	UserID               string `json:"user_id"`
	Username             string `json:"username"`
	ConfirmationRequired bool   `json:"confirmation_required"`
}

// CurrentUser is the combined view served by /auth/me.
type CurrentUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Username      string `json:"username,omitempty"`
	Role          Role   `json:"role,omitempty"`
	IsAdmin       bool   `json:"is_admin"`
}

// AuthUsecase is the auth repository. Every method is scoped to the client
// session key sid.
type AuthUsecase interface {
	SignUp(ctx context.Context, sid, email, password string) (*SignUpResult, error)
	SignIn(ctx context.Context, sid, email, password string) error
	SignOut(ctx context.Context, sid string) error
	RefreshSession(ctx context.Context, sid string) (*Session, error)
	SendPasswordResetEmail(ctx context.Context, email string) error

	GetCurrentSession(ctx context.Context, sid string) *Session
	IsEmailVerified(ctx context.Context, sid string) bool
	GetAccessToken(ctx context.Context, sid string) string
	GetCurrentUserID(ctx context.Context, sid string) string
	GetCurrentUserEmail(ctx context.Context, sid string) string

	EnsureProfileExists(ctx context.Context, sid string) bool
	// GetUserRole returns "" with a nil error when there is no session or no row.
	GetUserRole(ctx context.Context, sid string) (Role, error)
	IsAdmin(ctx context.Context, sid string) bool
	GetCurrentUsername(ctx context.Context, sid string) string
	GetCurrentUser(ctx context.Context, sid string) (*CurrentUser, error)
}
