// Package auth provides JWT token issuing/verification and bcrypt password
// hashing for the HTTP API and WebSocket authentication.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "kindred"

// Claims carries the signed identity of an authenticated user.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256 tokens.
type Manager struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewManager creates a Manager signing with secret, issuing tokens valid for
// tokenTTL.
func NewManager(secret string, tokenTTL time.Duration) *Manager {
	return &Manager{secret: []byte(secret), tokenTTL: tokenTTL}
}

// Issue creates a signed token for the given user.
func (m *Manager) Issue(userID, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify validates a token string and returns its claims. The signing method
// is pinned to HMAC so a token forged with "alg: none" or an RSA key is
// rejected before signature checking.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// TokenFromRequest extracts a bearer token from the Authorization header,
// falling back to the "token" query parameter for WebSocket upgrades where
// custom headers are awkward.
func TokenFromRequest(r *http.Request) (string, error) {
	const bearer = "Bearer "
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, bearer) {
			return "", errors.New("invalid authorization header format")
		}
		return strings.TrimPrefix(h, bearer), nil
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, nil
	}
	return "", errors.New("missing credentials")
}

// HashPassword returns a bcrypt hash of the given password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
