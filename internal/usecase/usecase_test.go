package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"testing"
	"time"

	"image-board-backend/internal/domain"
	"image-board-backend/internal/repository/session"
	"image-board-backend/internal/usecase"
	"image-board-backend/pkg/apperror"
	"image-board-backend/pkg/security"
	"image-board-backend/pkg/supabase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var anonPattern = regexp.MustCompile(`^anon-[a-z0-9]{8}$`)

// Mock Repositories
type MockAuthGateway struct {
	mock.Mock
}

func (m *MockAuthGateway) SignUp(ctx context.Context, email, password string, data map[string]interface{}) (*domain.AuthUser, *domain.Session, error) {
	args := m.Called(ctx, email, password, data)
	var user *domain.AuthUser
	var sess *domain.Session
	if args.Get(0) != nil {
		user = args.Get(0).(*domain.AuthUser)
	}
	if args.Get(1) != nil {
		sess = args.Get(1).(*domain.Session)
	}
	return user, sess, args.Error(2)
}

func (m *MockAuthGateway) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockAuthGateway) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockAuthGateway) SignOut(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}

func (m *MockAuthGateway) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return m.Called(ctx, email, redirectTo).Error(0)
}

type MockProfileRepo struct {
	mock.Mock
}

func (m *MockProfileRepo) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func (m *MockProfileRepo) Create(ctx context.Context, p *domain.Profile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockProfileRepo) List(ctx context.Context, f domain.ProfileFilter) ([]domain.Profile, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Profile), args.Get(1).(int64), args.Error(2)
}

func (m *MockProfileRepo) CountByRole(ctx context.Context) (map[domain.Role]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.Role]int64), args.Error(1)
}

type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) IsBlocked(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockGuard) RecordFailure(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockGuard) Clear(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

type authFixture struct {
	gateway  *MockAuthGateway
	profiles *MockProfileRepo
	store    *session.MemoryStore
	secLogs  *observer.ObservedLogs
	uc       domain.AuthUsecase
}

func newAuthFixture(guard usecase.SignInGuard) *authFixture {
	f := &authFixture{
		gateway:  new(MockAuthGateway),
		profiles: new(MockProfileRepo),
		store:    session.NewMemoryStore(time.Hour),
	}
	core, logs := observer.New(zapcore.DebugLevel)
	f.secLogs = logs
	f.uc = usecase.NewAuthUsecase(
		f.gateway, f.store, f.profiles, guard,
		security.NewSecurityLogger(zap.New(core), "test", "test"),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		usecase.AuthConfig{PasswordResetRedirectURL: "imageboard://reset"},
	)
	return f
}

func confirmedSession(userID, email string) *domain.Session {
	now := time.Now()
	return &domain.Session{
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		User:         domain.AuthUser{ID: userID, Email: email, EmailConfirmedAt: &now},
	}
}

func TestGenerateAnonUsername(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		name := usecase.GenerateAnonUsername()
		assert.Regexp(t, anonPattern, name)
		seen[name] = true
	}
	assert.Greater(t, len(seen), 990)
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("Should create member profile with anon username", func(t *testing.T) {
		f := newAuthFixture(nil)
		var metadata map[string]interface{}
		f.gateway.On("SignUp", mock.Anything, "a@b.com", "pw123456", mock.Anything).
			Return(&domain.AuthUser{ID: "user-1", Email: "a@b.com"}, nil, nil).
			Run(func(args mock.Arguments) { metadata = args.Get(3).(map[string]interface{}) })
		f.profiles.On("GetByID", mock.Anything, "user-1").Return(nil, nil)

		var created *domain.Profile
		f.profiles.On("Create", mock.Anything, mock.AnythingOfType("*domain.Profile")).Return(nil).
			Run(func(args mock.Arguments) { created = args.Get(1).(*domain.Profile) })

		res, err := f.uc.SignUp(ctx, "sid-1", "a@b.com", "pw123456")
		require.NoError(t, err)
		assert.True(t, res.ConfirmationRequired)
		assert.Equal(t, "user-1", res.UserID)
		assert.Regexp(t, anonPattern, res.Username)

		require.NotNil(t, created)
		assert.Equal(t, "user-1", created.ID)
		assert.Equal(t, res.Username, created.Username)
		assert.Equal(t, res.Username, created.FullName)
		assert.Equal(t, domain.RoleMember, created.Role)
		assert.Equal(t, res.Username, metadata["username"])
		assert.Equal(t, res.Username, metadata["full_name"])

		// No session was returned, so nothing is stored
		assert.Nil(t, f.uc.GetCurrentSession(ctx, "sid-1"))
	})

	t.Run("Should store session when confirmation is off", func(t *testing.T) {
		f := newAuthFixture(nil)
		sess := confirmedSession("user-2", "c@d.com")
		f.gateway.On("SignUp", mock.Anything, "c@d.com", "pw123456", mock.Anything).Return(nil, sess, nil)
		f.profiles.On("GetByID", mock.Anything, "user-2").Return(&domain.Profile{ID: "user-2", Role: domain.RoleMember}, nil)

		res, err := f.uc.SignUp(ctx, "sid-2", "c@d.com", "pw123456")
		require.NoError(t, err)
		assert.False(t, res.ConfirmationRequired)
		assert.Equal(t, "user-2", f.uc.GetCurrentUserID(ctx, "sid-2"))
		f.profiles.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Should swallow profile repair failure", func(t *testing.T) {
		f := newAuthFixture(nil)
		f.gateway.On("SignUp", mock.Anything, "e@f.com", "pw123456", mock.Anything).
			Return(&domain.AuthUser{ID: "user-3"}, nil, nil)
		f.profiles.On("GetByID", mock.Anything, "user-3").Return(nil, errors.New("db down"))

		_, err := f.uc.SignUp(ctx, "sid-3", "e@f.com", "pw123456")
		assert.NoError(t, err)
	})

	t.Run("Should fail when remote sign-up fails", func(t *testing.T) {
		f := newAuthFixture(nil)
		f.gateway.On("SignUp", mock.Anything, "a@b.com", "pw", mock.Anything).
			Return(nil, nil, &supabase.AuthError{Status: http.StatusUnprocessableEntity, Message: "User already registered"})

		_, err := f.uc.SignUp(ctx, "sid-4", "a@b.com", "pw")
		require.Error(t, err)
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, appErr.Code)
		assert.Equal(t, "User already registered", appErr.Message)
		f.profiles.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)

		events := f.secLogs.FilterMessage(string(security.EventSignUpFailed)).All()
		require.Len(t, events, 1)
		assert.Empty(t, f.secLogs.FilterMessage(string(security.EventSignInFailed)).All())
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("Should sign out unconfirmed email and leave no session", func(t *testing.T) {
		f := newAuthFixture(nil)
		require.NoError(t, f.store.Save(ctx, "sid-1", confirmedSession("old", "old@x.com")))

		unconfirmed := &domain.Session{AccessToken: "tok", User: domain.AuthUser{ID: "user-1", Email: "a@b.com"}}
		f.gateway.On("SignInWithPassword", mock.Anything, "a@b.com", "pw123456").Return(unconfirmed, nil)
		f.gateway.On("SignOut", mock.Anything, "tok").Return(errors.New("network down"))

		err := f.uc.SignIn(ctx, "sid-1", "a@b.com", "pw123456")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperror.ErrEmailNotConfirmed)
		assert.Equal(t, "Email not confirmed", err.Error())

		f.gateway.AssertCalled(t, "SignOut", mock.Anything, "tok")
		assert.Nil(t, f.uc.GetCurrentSession(ctx, "sid-1"))
		assert.Empty(t, f.uc.GetAccessToken(ctx, "sid-1"))
		f.profiles.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Should keep existing profile and role unchanged", func(t *testing.T) {
		f := newAuthFixture(nil)
		f.gateway.On("SignInWithPassword", mock.Anything, "mod@b.com", "pw123456").
			Return(confirmedSession("user-2", "mod@b.com"), nil)
		f.profiles.On("GetByID", mock.Anything, "user-2").
			Return(&domain.Profile{ID: "user-2", Username: "mod", Role: domain.RoleModerator}, nil)

		require.NoError(t, f.uc.SignIn(ctx, "sid-2", "mod@b.com", "pw123456"))

		role, err := f.uc.GetUserRole(ctx, "sid-2")
		require.NoError(t, err)
		assert.Equal(t, domain.RoleModerator, role)
		assert.True(t, f.uc.IsEmailVerified(ctx, "sid-2"))
		assert.Equal(t, "mod@b.com", f.uc.GetCurrentUserEmail(ctx, "sid-2"))
		f.profiles.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Should derive fallback username from email", func(t *testing.T) {
		f := newAuthFixture(nil)
		f.gateway.On("SignInWithPassword", mock.Anything, "john.doe@example.com", "pw123456").
			Return(confirmedSession("user-3", "john.doe@example.com"), nil)
		f.profiles.On("GetByID", mock.Anything, "user-3").Return(nil, nil)
		f.profiles.On("Create", mock.Anything, mock.MatchedBy(func(p *domain.Profile) bool {
			return p.Username == "john_doe" && p.FullName == "john_doe" && p.Role == domain.RoleMember
		})).Return(nil)

		require.NoError(t, f.uc.SignIn(ctx, "sid-3", "john.doe@example.com", "pw123456"))
		f.profiles.AssertNumberOfCalls(t, "Create", 1)
	})

	t.Run("Should map rejected credentials", func(t *testing.T) {
		guard := new(MockGuard)
		f := newAuthFixture(guard)
		guard.On("IsBlocked", mock.Anything, "a@b.com").Return(false, nil)
		guard.On("RecordFailure", mock.Anything, "a@b.com").Return(false, nil)
		f.gateway.On("SignInWithPassword", mock.Anything, "a@b.com", "bad").
			Return(nil, &supabase.AuthError{Status: http.StatusBadRequest, Message: "Invalid login credentials"})

		err := f.uc.SignIn(ctx, "sid-4", "a@b.com", "bad")
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, appErr.Code)
		assert.Equal(t, "Invalid login credentials", appErr.Message)
		guard.AssertCalled(t, "RecordFailure", mock.Anything, "a@b.com")
	})

	t.Run("Should refuse blocked email without calling auth", func(t *testing.T) {
		guard := new(MockGuard)
		f := newAuthFixture(guard)
		guard.On("IsBlocked", mock.Anything, "a@b.com").Return(true, nil)

		err := f.uc.SignIn(ctx, "sid-5", "a@b.com", "pw")
		appErr, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusTooManyRequests, appErr.Code)
		f.gateway.AssertNotCalled(t, "SignInWithPassword", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Should treat upstream outage as bad gateway", func(t *testing.T) {
		f := newAuthFixture(nil)
		f.gateway.On("SignInWithPassword", mock.Anything, "a@b.com", "pw").Return(nil, errors.New("dial tcp: refused"))

		appErr, ok := apperror.As(f.uc.SignIn(ctx, "sid-6", "a@b.com", "pw"))
		require.True(t, ok)
		assert.Equal(t, http.StatusBadGateway, appErr.Code)
	})
}

func TestEnsureProfileExists(t *testing.T) {
	ctx := context.Background()

	t.Run("Should be idempotent", func(t *testing.T) {
		f := newAuthFixture(nil)
		require.NoError(t, f.store.Save(ctx, "sid", confirmedSession("user-1", "x.y@z.com")))

		f.profiles.On("GetByID", mock.Anything, "user-1").Return(nil, nil).Once()
		f.profiles.On("Create", mock.Anything, mock.AnythingOfType("*domain.Profile")).Return(nil).Once()
		f.profiles.On("GetByID", mock.Anything, "user-1").
			Return(&domain.Profile{ID: "user-1", Username: "x_y", Role: domain.RoleMember}, nil)

		assert.True(t, f.uc.EnsureProfileExists(ctx, "sid"))
		assert.True(t, f.uc.EnsureProfileExists(ctx, "sid"))
		f.profiles.AssertNumberOfCalls(t, "Create", 1)
		assert.Equal(t, "x_y", f.uc.GetCurrentUsername(ctx, "sid"))
	})

	t.Run("Should accept lost insert race", func(t *testing.T) {
		f := newAuthFixture(nil)
		require.NoError(t, f.store.Save(ctx, "sid", confirmedSession("user-2", "a@b.com")))
		f.profiles.On("GetByID", mock.Anything, "user-2").Return(nil, nil)
		f.profiles.On("Create", mock.Anything, mock.Anything).Return(domain.ErrProfileExists)

		assert.True(t, f.uc.EnsureProfileExists(ctx, "sid"))
	})

	t.Run("Should return false without session or on failure", func(t *testing.T) {
		f := newAuthFixture(nil)
		assert.False(t, f.uc.EnsureProfileExists(ctx, "missing"))

		require.NoError(t, f.store.Save(ctx, "sid", confirmedSession("user-3", "a@b.com")))
		f.profiles.On("GetByID", mock.Anything, "user-3").Return(nil, errors.New("db down"))
		assert.False(t, f.uc.EnsureProfileExists(ctx, "sid"))
	})
}

func TestRoleAccessors(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(nil)

	role, err := f.uc.GetUserRole(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, role)
	assert.False(t, f.uc.IsAdmin(ctx, "nobody"))
	assert.Empty(t, f.uc.GetCurrentUsername(ctx, "nobody"))

	require.NoError(t, f.store.Save(ctx, "admin", confirmedSession("user-a", "a@b.com")))
	require.NoError(t, f.store.Save(ctx, "broken", confirmedSession("user-b", "b@b.com")))
	f.profiles.On("GetByID", mock.Anything, "user-a").Return(&domain.Profile{ID: "user-a", Username: "boss", Role: domain.RoleAdmin}, nil)
	f.profiles.On("GetByID", mock.Anything, "user-b").Return(nil, errors.New("timeout"))

	assert.True(t, f.uc.IsAdmin(ctx, "admin"))

	_, err = f.uc.GetUserRole(ctx, "broken")
	assert.Error(t, err)
	assert.False(t, f.uc.IsAdmin(ctx, "broken"))
	assert.Empty(t, f.uc.GetCurrentUsername(ctx, "broken"))

	me, err := f.uc.GetCurrentUser(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "boss", me.Username)
	assert.True(t, me.IsAdmin)

	_, err = f.uc.GetCurrentUser(ctx, "nobody")
	assert.ErrorIs(t, err, apperror.ErrNoSession)
}

func TestRefreshAndSignOut(t *testing.T) {
	ctx := context.Background()

	t.Run("Should fail refresh without session", func(t *testing.T) {
		f := newAuthFixture(nil)
		_, err := f.uc.RefreshSession(ctx, "none")
		assert.ErrorIs(t, err, apperror.ErrRefreshFailed)
		assert.Equal(t, "Failed to refresh session.", err.Error())
	})

	t.Run("Should store refreshed session", func(t *testing.T) {
		f := newAuthFixture(nil)
		require.NoError(t, f.store.Save(ctx, "sid", confirmedSession("user-1", "a@b.com")))
		fresh := confirmedSession("user-1", "a@b.com")
		fresh.AccessToken = "fresh"
		f.gateway.On("RefreshSession", mock.Anything, "refresh-user-1").Return(fresh, nil)

		got, err := f.uc.RefreshSession(ctx, "sid")
		require.NoError(t, err)
		assert.Equal(t, "fresh", got.AccessToken)
		assert.Equal(t, "fresh", f.uc.GetAccessToken(ctx, "sid"))
	})

	t.Run("Should drop local session even if remote sign-out fails", func(t *testing.T) {
		f := newAuthFixture(nil)
		require.NoError(t, f.store.Save(ctx, "sid", confirmedSession("user-1", "a@b.com")))
		f.gateway.On("SignOut", mock.Anything, "access-user-1").Return(errors.New("network down"))

		err := f.uc.SignOut(ctx, "sid")
		assert.Error(t, err)
		assert.Nil(t, f.uc.GetCurrentSession(ctx, "sid"))
	})

	t.Run("Should pass reset redirect", func(t *testing.T) {
		f := newAuthFixture(nil)
		f.gateway.On("ResetPasswordForEmail", mock.Anything, "a@b.com", "imageboard://reset").Return(nil)
		assert.NoError(t, f.uc.SendPasswordResetEmail(ctx, "a@b.com"))
	})
}
