package usecase

import (
	"context"
	"errors"
	"image-board-backend/internal/domain"
	"image-board-backend/pkg/apperror"
	"image-board-backend/pkg/security"
	"image-board-backend/pkg/supabase"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
)

const (
	anonUsernamePrefix  = "anon-"
	anonUsernameLength  = 8
	anonUsernameCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateAnonUsername returns "anon-" followed by 8 random [a-z0-9] characters.
func GenerateAnonUsername() string {
	var b strings.Builder
	b.Grow(len(anonUsernamePrefix) + anonUsernameLength)
	b.WriteString(anonUsernamePrefix)
	for i := 0; i < anonUsernameLength; i++ {
		b.WriteByte(anonUsernameCharset[rand.IntN(len(anonUsernameCharset))])
	}
	return b.String()
}

// usernameFromEmail derives the fallback username for accounts that have no
// profile row yet: the local part with dots turned into underscores.
func usernameFromEmail(email string) string {
	if email == "" {
		email = "user"
	}
	local, _, _ := strings.Cut(email, "@")
	return strings.ReplaceAll(local, ".", "_")
}

// SignInGuard throttles repeated failed sign-ins. Optional.
type SignInGuard interface {
	IsBlocked(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) (bool, error)
	Clear(ctx context.Context, email string) error
}

type AuthConfig struct {
	PasswordResetRedirectURL string
}

type authUsecase struct {
	gateway  domain.AuthGateway
	sessions domain.SessionStore
	profiles domain.ProfileRepository
	guard    SignInGuard
	secLog   *security.SecurityLogger
	log      *slog.Logger
	cfg      AuthConfig
}

func NewAuthUsecase(
	gateway domain.AuthGateway,
	sessions domain.SessionStore,
	profiles domain.ProfileRepository,
	guard SignInGuard,
	secLog *security.SecurityLogger,
	log *slog.Logger,
	cfg AuthConfig,
) domain.AuthUsecase {
	if log == nil {
		log = slog.Default()
	}
	if secLog == nil {
		secLog = security.DefaultLogger()
	}
	return &authUsecase{
		gateway:  gateway,
		sessions: sessions,
		profiles: profiles,
		guard:    guard,
		secLog:   secLog,
		log:      log,
		cfg:      cfg,
	}
}

func (u *authUsecase) SignUp(ctx context.Context, sid, email, password string) (*domain.SignUpResult, error) {
	username := GenerateAnonUsername()

	user, sess, err := u.gateway.SignUp(ctx, email, password, map[string]interface{}{
		"username":  username,
		"full_name": username,
	})
	if err != nil {
		u.secLog.LogAuthEvent(ctx, security.EventSignUpFailed, email, "sign_up_rejected")
		return nil, authError(err)
	}

	if sess != nil {
		if err := u.sessions.Save(ctx, sid, sess); err != nil {
			u.log.Warn("failed to store session after sign-up", "error", err)
		}
	}

	userID := ""
	switch {
	case user != nil && user.ID != "":
		userID = user.ID
	case sess != nil:
		userID = sess.User.ID
	}

	// Trigger di database seharusnya sudah membuat profile, ini cadangan
	if userID != "" {
		if _, err := u.repairProfile(ctx, userID, username); err != nil {
			u.log.Warn("profile creation failed", "user_id", userID, "error", err)
		}
	}

	u.secLog.LogAuthEvent(ctx, security.EventSignUp, email, "")
	return &domain.SignUpResult{
		UserID:               userID,
		Username:             username,
		ConfirmationRequired: sess == nil,
	}, nil
}

func (u *authUsecase) SignIn(ctx context.Context, sid, email, password string) error {
	if u.guard != nil {
		blocked, err := u.guard.IsBlocked(ctx, email)
		if err != nil {
			u.log.Warn("sign-in guard unavailable", "error", err)
		} else if blocked {
			return apperror.TooManyRequests("Too many failed sign-in attempts. Try again later.")
		}
	}

	sess, err := u.gateway.SignInWithPassword(ctx, email, password)
	if err != nil {
		u.secLog.LogAuthEvent(ctx, security.EventSignInFailed, email, "invalid_credentials")
		if u.guard != nil {
			if _, gerr := u.guard.RecordFailure(ctx, email); gerr != nil {
				u.log.Warn("failed to record sign-in failure", "error", gerr)
			}
		}
		return authError(err)
	}

	// Akun yang belum verifikasi email tidak boleh punya sesi aktif
	if !sess.User.EmailConfirmed() {
		if err := u.gateway.SignOut(ctx, sess.AccessToken); err != nil {
			u.log.Warn("remote sign-out of unconfirmed account failed", "error", err)
		}
		if err := u.sessions.Delete(ctx, sid); err != nil {
			u.log.Warn("failed to drop local session", "error", err)
		}
		u.secLog.LogAuthEvent(ctx, security.EventUnconfirmedSignOut, email, "email_not_confirmed")
		return apperror.New(http.StatusForbidden, apperror.ErrEmailNotConfirmed.Error(), apperror.ErrEmailNotConfirmed)
	}

	if err := u.sessions.Save(ctx, sid, sess); err != nil {
		return apperror.Internal(err)
	}

	if u.guard != nil {
		if err := u.guard.Clear(ctx, email); err != nil {
			u.log.Warn("failed to clear sign-in failures", "error", err)
		}
	}

	if sess.User.ID != "" {
		if _, err := u.repairProfile(ctx, sess.User.ID, usernameFromEmail(email)); err != nil {
			u.log.Warn("profile check/creation failed", "user_id", sess.User.ID, "error", err)
		}
	}

	u.secLog.LogAuthEvent(ctx, security.EventSignInSuccess, email, "")
	return nil
}

func (u *authUsecase) SignOut(ctx context.Context, sid string) error {
	sess := u.GetCurrentSession(ctx, sid)
	if sess == nil {
		return nil
	}

	remoteErr := u.gateway.SignOut(ctx, sess.AccessToken)
	if err := u.sessions.Delete(ctx, sid); err != nil {
		return apperror.Internal(err)
	}
	if remoteErr != nil {
		return authError(remoteErr)
	}
	return nil
}

func (u *authUsecase) RefreshSession(ctx context.Context, sid string) (*domain.Session, error) {
	current := u.GetCurrentSession(ctx, sid)
	if current == nil || current.RefreshToken == "" {
		return nil, apperror.New(http.StatusUnauthorized, apperror.ErrRefreshFailed.Error(), apperror.ErrRefreshFailed)
	}

	sess, err := u.gateway.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		return nil, authError(err)
	}
	if sess == nil {
		return nil, apperror.New(http.StatusUnauthorized, apperror.ErrRefreshFailed.Error(), apperror.ErrRefreshFailed)
	}

	if err := u.sessions.Save(ctx, sid, sess); err != nil {
		return nil, apperror.Internal(err)
	}
	u.secLog.LogAuthEvent(ctx, security.EventSessionRefreshed, sess.User.Email, "")
	return sess, nil
}

func (u *authUsecase) SendPasswordResetEmail(ctx context.Context, email string) error {
	if err := u.gateway.ResetPasswordForEmail(ctx, email, u.cfg.PasswordResetRedirectURL); err != nil {
		return authError(err)
	}
	u.secLog.LogAuthEvent(ctx, security.EventPasswordResetIssued, email, "")
	return nil
}

func (u *authUsecase) GetCurrentSession(ctx context.Context, sid string) *domain.Session {
	if sid == "" {
		return nil
	}
	sess, err := u.sessions.Get(ctx, sid)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionAbsent) {
			u.log.Warn("failed to load session", "error", err)
		}
		return nil
	}
	return sess
}

func (u *authUsecase) IsEmailVerified(ctx context.Context, sid string) bool {
	sess := u.GetCurrentSession(ctx, sid)
	return sess != nil && sess.User.EmailConfirmed()
}

func (u *authUsecase) GetAccessToken(ctx context.Context, sid string) string {
	if sess := u.GetCurrentSession(ctx, sid); sess != nil {
		return sess.AccessToken
	}
	return ""
}

func (u *authUsecase) GetCurrentUserID(ctx context.Context, sid string) string {
	if sess := u.GetCurrentSession(ctx, sid); sess != nil {
		return sess.User.ID
	}
	return ""
}

func (u *authUsecase) GetCurrentUserEmail(ctx context.Context, sid string) string {
	if sess := u.GetCurrentSession(ctx, sid); sess != nil {
		return sess.User.Email
	}
	return ""
}

func (u *authUsecase) EnsureProfileExists(ctx context.Context, sid string) bool {
	sess := u.GetCurrentSession(ctx, sid)
	if sess == nil || sess.User.ID == "" {
		return false
	}

	ok, err := u.repairProfile(ctx, sess.User.ID, usernameFromEmail(sess.User.Email))
	if err != nil {
		u.log.Warn("ensureProfileExists failed", "user_id", sess.User.ID, "error", err)
		return false
	}
	return ok
}

func (u *authUsecase) GetUserRole(ctx context.Context, sid string) (domain.Role, error) {
	userID := u.GetCurrentUserID(ctx, sid)
	if userID == "" {
		return "", nil
	}

	profile, err := u.profiles.GetByID(ctx, userID)
	if err != nil {
		return "", apperror.Internal(err)
	}
	if profile == nil {
		return "", nil
	}
	return profile.Role, nil
}

func (u *authUsecase) IsAdmin(ctx context.Context, sid string) bool {
	role, err := u.GetUserRole(ctx, sid)
	return err == nil && role == domain.RoleAdmin
}

func (u *authUsecase) GetCurrentUsername(ctx context.Context, sid string) string {
	userID := u.GetCurrentUserID(ctx, sid)
	if userID == "" {
		return ""
	}
	profile, err := u.profiles.GetByID(ctx, userID)
	if err != nil || profile == nil {
		return ""
	}
	return profile.Username
}

func (u *authUsecase) GetCurrentUser(ctx context.Context, sid string) (*domain.CurrentUser, error) {
	sess := u.GetCurrentSession(ctx, sid)
	if sess == nil {
		return nil, apperror.New(http.StatusUnauthorized, "Not signed in", apperror.ErrNoSession)
	}

	cu := &domain.CurrentUser{
		ID:            sess.User.ID,
		Email:         sess.User.Email,
		EmailVerified: sess.User.EmailConfirmed(),
	}

	profile, err := u.profiles.GetByID(ctx, sess.User.ID)
	if err != nil {
		u.log.Warn("failed to load profile", "user_id", sess.User.ID, "error", err)
		return cu, nil
	}
	if profile != nil {
		cu.Username = profile.Username
		cu.Role = profile.Role
		cu.IsAdmin = profile.Role == domain.RoleAdmin
	}
	return cu, nil
}

// repairProfile makes sure a profiles row exists for userID, inserting a
// member row named username when it does not. Returns true when the row is
// known to exist afterwards.
func (u *authUsecase) repairProfile(ctx context.Context, userID, username string) (bool, error) {
	existing, err := u.profiles.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return true, nil
	}

	err = u.profiles.Create(ctx, &domain.Profile{
		ID:       userID,
		Username: username,
		FullName: username,
		Role:     domain.RoleMember,
	})
	if errors.Is(err, domain.ErrProfileExists) {
		// Kalah race dengan trigger, anggap sudah ada
		return true, nil
	}
	if err != nil {
		return false, err
	}

	u.log.Info("profile created", "user_id", userID, "username", username)
	return true, nil
}

// authError turns a hosted-auth failure into an AppError, keeping client
// errors (bad credentials, duplicate email) distinct from outages.
func authError(err error) error {
	var ae *supabase.AuthError
	if errors.As(err, &ae) {
		switch {
		case ae.Status == http.StatusTooManyRequests:
			return apperror.New(http.StatusTooManyRequests, ae.Error(), err)
		case ae.Status >= 400 && ae.Status < 500:
			code := ae.Status
			if code == http.StatusUnprocessableEntity || code == http.StatusNotFound {
				code = http.StatusBadRequest
			}
			return apperror.New(code, ae.Error(), err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperror.New(http.StatusGatewayTimeout, "Auth service timed out", err)
	}
	return apperror.Upstream("Auth service unavailable", err)
}
