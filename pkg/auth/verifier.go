package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrExpired is returned when the token signature is fine but exp has passed.
var ErrExpired = errors.New("token expired")

// Claims are the Supabase access-token claims this service reads.
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// Verifier checks access tokens issued by the hosted auth.
// HS256 tokens are checked with the project JWT secret; RS256/ES256 tokens
// with the published JWKS.
type Verifier struct {
	jwks   *Provider
	secret []byte
}

func NewVerifier(jwks *Provider, secret string) *Verifier {
	return &Verifier{jwks: jwks, secret: []byte(secret)}
}

func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return claims, ErrExpired
		}
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(v.secret) == 0 {
			return nil, fmt.Errorf("HS256 token received but SUPABASE_JWT_SECRET is not configured")
		}
		return v.secret, nil
	}

	if v.jwks == nil {
		return nil, fmt.Errorf("asymmetric token received but no JWKS provider configured")
	}
	return v.jwks.KeyFunc(token)
}
