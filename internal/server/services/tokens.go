package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/accounts/internal/clock"
	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// DefaultTokenValidity is the lifetime of an emailed action token.
const DefaultTokenValidity = 24 * time.Hour

// TokenService mints and redeems the email tokens that authorize an action
// (registration, email change) for one address.
type TokenService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	validity    time.Duration
	clock       clock.Clock
	log         logging.Logger
	newToken    func() string
}

// NewTokenService constructs a TokenService. Non-positive validity falls back
// to DefaultTokenValidity.
func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, validity time.Duration, c clock.Clock, log logging.Logger) *TokenService {
	if validity <= 0 {
		validity = DefaultTokenValidity
	}
	return &TokenService{
		db:          db,
		repomanager: m,
		validity:    validity,
		clock:       c,
		log:         log.With("service", "tokens"),
		newToken:    randomToken,
	}
}

// randomToken renders 128 random bits as 32 lowercase hex characters.
func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Issue persists a fresh token for email and action and returns its value.
// Every call mints an independent row, so retries are safe.
func (s *TokenService) Issue(ctx context.Context, email, action string) (string, error) {
	now := s.clock.Now()
	t := &models.Token{
		Token:     s.newToken(),
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.validity),
	}

	if _, err := s.repomanager.Tokens(s.db).Create(ctx, t, action); err != nil {
		return "", fmt.Errorf("error creating token: %w", err)
	}

	s.log.Debug(ctx, "token issued", "email", email, "action", action)
	return t.Token, nil
}

// Redeem checks that token was issued for email and expectedAction and has
// not expired. The row is left in place: a token stays redeemable until it
// expires.
func (s *TokenService) Redeem(ctx context.Context, token, email, expectedAction string) error {
	t, err := s.repomanager.Tokens(s.db).FindWithAction(ctx, token, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrTokenNotFound
		}
		return fmt.Errorf("error searching token: %w", err)
	}

	if t.Action != expectedAction {
		s.log.Warn(ctx, "token action mismatch", "email", email, "expected", expectedAction, "actual", t.Action)
		return common.ErrTokenMismatch
	}

	if s.clock.Now().After(t.ExpiresAt) {
		return common.ErrTokenExpired
	}

	return nil
}
