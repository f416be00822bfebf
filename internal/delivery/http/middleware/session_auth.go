package middleware

import (
	"errors"
	"image-board-backend/internal/delivery/http/response"
	"image-board-backend/internal/domain"
	"image-board-backend/pkg/auth"
	"image-board-backend/pkg/security"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionCookieName = "sb_session"
	SessionHeaderName = "X-Session-ID"
)

// TokenVerifier checks a hosted-auth access token.
type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// SessionID returns the client session key from the X-Session-ID header or
// the sb_session cookie. Malformed keys are ignored.
func SessionID(c *gin.Context) string {
	sid := c.GetHeader(SessionHeaderName)
	if sid == "" {
		if cookie, err := c.Cookie(SessionCookieName); err == nil {
			sid = cookie
		}
	}
	if _, err := uuid.Parse(sid); err != nil {
		return ""
	}
	return sid
}

// SessionAuth loads the caller's stored session, verifies its access token
// and refreshes it once if it has expired.
func SessionAuth(authUC domain.AuthUsecase, verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := SessionID(c)
		if sid == "" {
			response.Error(c, http.StatusUnauthorized, "Session required", nil)
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		sess := authUC.GetCurrentSession(ctx, sid)
		if sess == nil {
			logUnauthorized(c, "")
			response.Error(c, http.StatusUnauthorized, "Not signed in", nil)
			c.Abort()
			return
		}

		claims, err := verifier.Verify(sess.AccessToken)
		if sess.Expired(time.Now()) || errors.Is(err, auth.ErrExpired) {
			// Token kadaluarsa, coba refresh sekali
			sess, err = authUC.RefreshSession(ctx, sid)
			if err != nil {
				logUnauthorized(c, "")
				response.Error(c, http.StatusUnauthorized, "Session expired. Please sign in again.", nil)
				c.Abort()
				return
			}
			claims, err = verifier.Verify(sess.AccessToken)
		}

		if err != nil || claims.Subject == "" || claims.Subject != sess.User.ID {
			logUnauthorized(c, sess.User.ID)
			response.Error(c, http.StatusUnauthorized, "Invalid session token", nil)
			c.Abort()
			return
		}

		// Role comes from profiles, not from the JWT role claim ("authenticated")
		role, err := authUC.GetUserRole(ctx, sid)
		if err != nil {
			role = ""
		}

		c.Set(string(domain.KeySessionID), sid)
		c.Set(string(domain.KeyUserID), claims.Subject)
		c.Set(string(domain.KeyUserEmail), sess.User.Email)
		c.Set(string(domain.KeyUserRole), string(role))

		c.Next()
	}
}

// RequireAdmin must run after SessionAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(string(domain.KeyUserRole)) != string(domain.RoleAdmin) {
			security.DefaultLogger().LogAccessDenied(
				c.Request.Context(),
				security.EventAdminAccessDenied,
				c.GetString(string(domain.KeyUserID)),
				c.ClientIP(),
				c.GetString("RequestID"),
				c.FullPath(),
			)
			response.Error(c, http.StatusForbidden, "Admin access required", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

func logUnauthorized(c *gin.Context, userID string) {
	security.DefaultLogger().LogAccessDenied(
		c.Request.Context(),
		security.EventUnauthorizedAccess,
		userID,
		c.ClientIP(),
		c.GetString("RequestID"),
		c.FullPath(),
	)
}
