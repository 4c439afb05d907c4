/*
Package session issues and verifies signed session tokens.

A token is an HS256 JWT carrying the employee id as subject and a random
jti. Logout revokes the jti until the token would have expired anyway;
revocations live in a Revocations implementation (memory or Redis).

    m := session.NewManager(secret, 8*time.Hour, session.NewMemoryRevocations())
    token, _ := m.Issue("2001")
    claims, err := m.Verify(ctx, token)
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "vacation-planner"

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims are the session token claims. Subject is the employee id.
type Claims struct {
	jwtv5.RegisteredClaims
}

// EmployeeID returns the subject.
func (c *Claims) EmployeeID() string { return c.Subject }

// Revocations records revoked token ids.
type Revocations interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Manager issues and verifies tokens.
type Manager struct {
	secret  []byte
	ttl     time.Duration
	revoked Revocations
	now     func() time.Time
}

// NewManager returns a manager. revoked may be nil to disable logout.
func NewManager(secret string, ttl time.Duration, revoked Revocations) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, revoked: revoked, now: time.Now}
}

// TTL returns the token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue signs a token for employeeID.
func (m *Manager) Issue(employeeID string) (string, error) {
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   employeeID,
			Issuer:    issuer,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse validates signature and expiry without consulting revocations.
func (m *Manager) Parse(tokenString string) (*Claims, error) {
	token, err := jwtv5.ParseWithClaims(tokenString, &Claims{}, func(t *jwtv5.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return m.secret, nil
	}, jwtv5.WithIssuer(issuer), jwtv5.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Verify parses the token and rejects revoked ones. A failing revocation
// lookup rejects the token.
func (m *Manager) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := m.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if m.revoked == nil {
		return claims, nil
	}
	revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke invalidates the token of claims for its remaining lifetime.
func (m *Manager) Revoke(ctx context.Context, claims *Claims) error {
	if m.revoked == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	return m.revoked.Revoke(ctx, claims.ID, ttl)
}
