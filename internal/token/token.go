// Package token issues and verifies HS256 access tokens.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/warranty-keeper/internal/authctx"
	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the registered claims plus the admin flag.
type Claims struct {
	jwt.RegisteredClaims
	Admin bool `json:"adm,omitempty"`
}

// Manager signs and parses access tokens with a shared key.
type Manager struct {
	key    []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewManager constructs a token manager.
func NewManager(key []byte, ttl time.Duration) *Manager {
	return &Manager{key: key, ttl: ttl, leeway: 30 * time.Second, now: time.Now}
}

// Issue creates a signed HS256 JWT for the account.
func (m *Manager) Issue(accountID int64, admin bool) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Admin: admin,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	return signed, exp, err
}

// Parse verifies raw and returns the caller it identifies.
// Any failure is reported as errs.ErrUnauthorized.
func (m *Manager) Parse(raw string) (authctx.Caller, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.key, nil
	}, jwt.WithLeeway(m.leeway), jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return authctx.Caller{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return authctx.Caller{}, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return authctx.Caller{AccountID: id, Admin: claims.Admin}, nil
}

// ErrNoBearer is returned by BearerFromHeader when no bearer token is present.
var ErrNoBearer = errors.New("no bearer token")

// BearerFromHeader extracts the token from an "Authorization: Bearer ..." value.
func BearerFromHeader(v string) (string, error) {
	const prefix = "bearer "
	if len(v) < len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return "", ErrNoBearer
	}
	raw := strings.TrimSpace(v[len(prefix):])
	if raw == "" {
		return "", ErrNoBearer
	}
	return raw, nil
}
