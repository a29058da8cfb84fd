// Package auth issues and verifies the bearer tokens handed out at login.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accounts/internal/clock"
	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultValidity is how long an access token stays valid.
const DefaultValidity = 30 * 24 * time.Hour

// Claims includes the registered claims and the id of the authenticated user.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

// Manager signs and verifies access tokens with a shared secret.
type Manager struct {
	secret   []byte
	method   jwt.SigningMethod
	validity time.Duration
	clock    clock.Clock
}

// NewManager returns a Manager for the given HMAC algorithm (HS256, HS384 or
// HS512). A nil clock means the real one.
func NewManager(secret []byte, algorithm string, validity time.Duration, c clock.Clock) (*Manager, error) {
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	if validity <= 0 {
		validity = DefaultValidity
	}
	if c == nil {
		c = clock.Real()
	}
	return &Manager{secret: secret, method: method, validity: validity, clock: c}, nil
}

// Create signs a token carrying userID that expires after the validity period.
func (m *Manager) Create(userID int64) (string, error) {
	token := jwt.NewWithClaims(m.method, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(m.clock.Now().Add(m.validity)),
		},
		UserID: userID,
	})

	s, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify parses tokenString and returns its claims. Expired tokens yield
// common.ErrTokenExpired; everything else that fails yields
// common.ErrInvalidToken.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == 0 {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
