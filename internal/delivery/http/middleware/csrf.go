package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"image-board-backend/internal/delivery/http/response"
	"image-board-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

const (
	CSRFTokenCookieName = "csrf_token"
	CSRFTokenHeaderName = "X-CSRF-Token"
	CSRFTokenLength     = 32
	CSRFTokenExpiry     = 24 * time.Hour
)

func generateCSRFToken() (string, error) {
	b := make([]byte, CSRFTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CSRFMiddleware implements the double-submit cookie pattern for browser
// clients. It only guards state-changing requests whose session key arrives
// in the sb_session cookie: a client sending X-Session-ID chose the header
// itself, which a cross-site form cannot do.
func CSRFMiddleware(secureCookies bool) gin.HandlerFunc {
	// Public auth routes have no session yet and rely on rate limiting
	exemptPaths := map[string]bool{
		"/v1/auth/login":           true,
		"/v1/auth/register":        true,
		"/v1/auth/forgot-password": true,
		"/v1/health":               true,
	}

	return func(c *gin.Context) {
		browser := c.GetHeader("Origin") != "" || hasCookie(c, SessionCookieName)

		csrfCookie, err := c.Cookie(CSRFTokenCookieName)
		if (err != nil || csrfCookie == "") && browser {
			token, err := generateCSRFToken()
			if err != nil {
				response.Error(c, http.StatusInternalServerError, "Failed to generate security token", nil)
				c.Abort()
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(CSRFTokenCookieName, token, int(CSRFTokenExpiry.Seconds()), "/", "", secureCookies, false)
			csrfCookie = token
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if exemptPaths[c.Request.URL.Path] || c.GetHeader(SessionHeaderName) != "" || !hasCookie(c, SessionCookieName) {
			c.Next()
			return
		}

		headerToken := c.GetHeader(CSRFTokenHeaderName)
		if headerToken == "" {
			logCSRFViolation(c, "missing_token")
			response.Error(c, http.StatusForbidden, "Missing CSRF token", nil)
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(headerToken), []byte(csrfCookie)) != 1 {
			logCSRFViolation(c, "token_mismatch")
			response.Error(c, http.StatusForbidden, "Invalid CSRF token", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

func logCSRFViolation(c *gin.Context, reason string) {
	security.DefaultLogger().Log(c.Request.Context(), security.SecurityEvent{
		Event:        security.EventCSRFViolation,
		SubjectType:  "ip",
		SubjectValue: c.ClientIP(),
		IP:           c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		RequestID:    c.GetString("RequestID"),
		Details:      map[string]interface{}{"reason": reason, "endpoint": c.FullPath()},
	})
}
