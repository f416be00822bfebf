package domain

import "context"

type Role string

const (
	RoleMember    Role = "member"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// Profile mirrors a row of the public.profiles table. ID is the auth user id.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

type ProfileFilter struct {
	Role   Role
	Search string
	Limit  int
	Offset int
}

type ProfileRepository interface {
	// GetByID returns (nil, nil) when no row exists.
	GetByID(ctx context.Context, id string) (*Profile, error)
	// Create returns ErrProfileExists on a unique violation.
	Create(ctx context.Context, profile *Profile) error
	List(ctx context.Context, filter ProfileFilter) ([]Profile, int64, error)
	CountByRole(ctx context.Context) (map[Role]int64, error)
}
