package domain

import (
	"context"
	"errors"

	"image-board-backend/pkg/supabase"
)

// Session and AuthUser are owned by the hosted auth; this service only
// stores and reads them.
type (
	Session  = supabase.Session
	AuthUser = supabase.User
)

var (
	ErrProfileExists = errors.New("profile already exists")
	ErrSessionAbsent = errors.New("session not found")
)

// SessionStore keeps the auth session of each client, keyed by the opaque
// session key handed to that client.
type SessionStore interface {
	// Get returns ErrSessionAbsent when nothing is stored under key.
	Get(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, key string, session *Session) error
	Delete(ctx context.Context, key string) error
}

// AuthGateway is the subset of the hosted auth API the service consumes.
type AuthGateway interface {
	SignUp(ctx context.Context, email, password string, data map[string]interface{}) (*AuthUser, *Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
}
