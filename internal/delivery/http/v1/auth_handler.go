package v1

import (
	"context"
	"image-board-backend/internal/delivery/http/middleware"
	"image-board-backend/internal/delivery/http/response"
	"image-board-backend/internal/domain"
	"image-board-backend/pkg/apperror"
	"image-board-backend/pkg/supabase"
	"image-board-backend/pkg/validation"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuthHandler struct {
	authUC domain.AuthUsecase
	cookie CookieConfig
}

// CookieConfig controls the sb_session cookie.
type CookieConfig struct {
	MaxAge time.Duration
	Secure bool
}

// NewAuthHandler registers the auth routes. authLimit guards the endpoints
// that accept credentials or send email.
func NewAuthHandler(public *gin.RouterGroup, protected *gin.RouterGroup, authUC domain.AuthUsecase, cookie CookieConfig, authLimit gin.HandlerFunc) {
	handler := &AuthHandler{authUC: authUC, cookie: cookie}

	publicAuth := public.Group("/auth")
	{
		publicAuth.POST("/register", authLimit, handler.Register)
		publicAuth.POST("/login", authLimit, handler.Login)
		publicAuth.POST("/logout", handler.Logout)
		publicAuth.POST("/refresh", handler.Refresh)
		publicAuth.POST("/forgot-password", authLimit, handler.ForgotPassword)
		publicAuth.GET("/session", handler.Session)
	}

	protectedAuth := protected.Group("/auth")
	{
		protectedAuth.GET("/me", handler.Me)
		protectedAuth.POST("/profile/ensure", handler.EnsureProfile)
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type SessionResponse struct {
	SessionID     string `json:"session_id,omitempty"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	AccessToken   string `json:"access_token,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
}

// upstreamContext forwards the caller's address to the hosted auth.
func upstreamContext(c *gin.Context) context.Context {
	return supabase.WithForwarded(c.Request.Context(), supabase.RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}

func bindError(c *gin.Context, err error) {
	msgs := validation.FormatValidationErrors(err)
	response.Error(c, http.StatusBadRequest, "Validation failed", msgs)
}

func (h *AuthHandler) setSession(c *gin.Context, sid string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, sid, int(h.cookie.MaxAge.Seconds()), "/", "", h.cookie.Secure, true)
	c.Header(middleware.SessionHeaderName, sid)
}

func (h *AuthHandler) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", h.cookie.Secure, true)
}

// Register godoc
// @Summary      User Registration
// @Description  Creates an account with a generated anon-xxxxxxxx username. When email confirmation is on, no session is issued.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        register  body      RegisterRequest  true  "Registration Details"
// @Success      201    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Failure      429    {object}  response.Response
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	sid := uuid.NewString()
	result, err := h.authUC.SignUp(upstreamContext(c), sid, req.Email, req.Password)
	if err != nil {
		c.Error(err)
		return
	}

	msg := "Registration successful. Please check your email to confirm."
	data := gin.H{
		"user_id":               result.UserID,
		"username":              result.Username,
		"confirmation_required": result.ConfirmationRequired,
	}
	if !result.ConfirmationRequired {
		h.setSession(c, sid)
		data["session_id"] = sid
		msg = "Registration successful"
	}
	response.Success(c, http.StatusCreated, msg, data)
}

// Login godoc
// @Summary      User Login
// @Description  Password sign-in. Accounts with an unconfirmed email are signed out again and get 403.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        login  body      LoginRequest  true  "Credentials"
// @Success      200    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Failure      403    {object}  response.Response
// @Failure      429    {object}  response.Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	// Always a fresh key on login, never reuse one the client sent
	sid := uuid.NewString()
	ctx := upstreamContext(c)
	if err := h.authUC.SignIn(ctx, sid, req.Email, req.Password); err != nil {
		c.Error(err)
		return
	}

	user, err := h.authUC.GetCurrentUser(ctx, sid)
	if err != nil {
		c.Error(err)
		return
	}

	h.setSession(c, sid)
	response.Success(c, http.StatusOK, "Login successful", gin.H{
		"session_id": sid,
		"user":       user,
	})
}

// Logout godoc
// @Summary      Logout
// @Description  Revokes the session at the hosted auth and forgets it locally.
// @Tags         auth
// @Produce      json
// @Param        X-Session-ID  header    string  false  "Session key"
// @Success      200  {object}  response.Response
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := middleware.SessionID(c)
	h.clearSession(c)
	if sid == "" {
		response.Success(c, http.StatusOK, "Logged out", nil)
		return
	}

	if err := h.authUC.SignOut(upstreamContext(c), sid); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Logged out", nil)
}

// Refresh godoc
// @Summary      Refresh session
// @Description  Exchanges the stored refresh token for a new access token.
// @Tags         auth
// @Produce      json
// @Param        X-Session-ID  header    string  false  "Session key"
// @Success      200  {object}  response.Response{data=SessionResponse}
// @Failure      401  {object}  response.Response
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	sid := middleware.SessionID(c)
	if sid == "" {
		c.Error(apperror.New(http.StatusUnauthorized, apperror.ErrRefreshFailed.Error(), apperror.ErrRefreshFailed))
		return
	}

	sess, err := h.authUC.RefreshSession(upstreamContext(c), sid)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Session refreshed", sessionResponse(sid, sess))
}

// ForgotPassword godoc
// @Summary      Request password reset
// @Description  Asks the hosted auth to email a reset link.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      ForgotPasswordRequest  true  "Email"
// @Success      200   {object}  response.Response
// @Failure      400   {object}  response.Response
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.authUC.SendPasswordResetEmail(upstreamContext(c), req.Email); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Password reset email sent", nil)
}

// Session godoc
// @Summary      Current session
// @Description  Reports the stored session without verifying or refreshing it. Used for auto-login on app start.
// @Tags         auth
// @Produce      json
// @Param        X-Session-ID  header    string  false  "Session key"
// @Success      200  {object}  response.Response{data=SessionResponse}
// @Router       /auth/session [get]
func (h *AuthHandler) Session(c *gin.Context) {
	sid := middleware.SessionID(c)
	sess := h.authUC.GetCurrentSession(c.Request.Context(), sid)
	if sess == nil {
		response.Success(c, http.StatusOK, "No active session", SessionResponse{})
		return
	}
	response.Success(c, http.StatusOK, "Active session", sessionResponse(sid, sess))
}

// Me godoc
// @Summary      Current user
// @Description  Session user merged with the profiles row.
// @Tags         auth
// @Produce      json
// @Param        X-Session-ID  header    string  false  "Session key"
// @Success      200  {object}  response.Response{data=domain.CurrentUser}
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authUC.GetCurrentUser(c.Request.Context(), c.GetString(string(domain.KeySessionID)))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Current user", user)
}

// EnsureProfile godoc
// @Summary      Repair profile row
// @Description  Creates the profiles row for the signed-in user if it is missing. Idempotent.
// @Tags         auth
// @Produce      json
// @Param        X-Session-ID  header    string  false  "Session key"
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /auth/profile/ensure [post]
func (h *AuthHandler) EnsureProfile(c *gin.Context) {
	sid := c.GetString(string(domain.KeySessionID))
	exists := h.authUC.EnsureProfileExists(c.Request.Context(), sid)
	response.Success(c, http.StatusOK, "Profile check complete", gin.H{
		"exists":   exists,
		"username": h.authUC.GetCurrentUsername(c.Request.Context(), sid),
	})
}

func sessionResponse(sid string, sess *domain.Session) SessionResponse {
	return SessionResponse{
		SessionID:     sid,
		Authenticated: true,
		UserID:        sess.User.ID,
		Email:         sess.User.Email,
		EmailVerified: sess.User.EmailConfirmed(),
		AccessToken:   sess.AccessToken,
		ExpiresAt:     sess.ExpiresAt,
	}
}
