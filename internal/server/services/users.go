// Package services contains server-side business logic: the action token
// workflow and the account operations exposed over HTTP.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accounts/internal/clock"
	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/cryptox"
	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/repomanager"
)

// Queues receiving confirmation notices after a committed change.
const (
	ConfirmRegisterQueue    = "confirm_register_email"
	ConfirmUpdateEmailQueue = "confirm_update_email_email"
)

// Publisher enqueues a JSON notification on a broker queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, message any, action string) error
}

// TokenRedeemer validates an emailed action token.
type TokenRedeemer interface {
	Redeem(ctx context.Context, token, email, expectedAction string) error
}

// AccessTokenIssuer mints bearer tokens for authenticated users.
type AccessTokenIssuer interface {
	Create(userID int64) (string, error)
}

// RegisterInput is what a client submits to create an account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Token    string
	Action   string
}

// Profile is the public view of a user.
type Profile struct {
	Username string
	Email    string
}

// UserService implements registration, login and profile updates.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      TokenRedeemer
	access      AccessTokenIssuer
	publisher   Publisher
	salt        string
	clock       clock.Clock
	log         logging.Logger
}

// NewUserService wires a UserService from its collaborators.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, tokens TokenRedeemer, access AccessTokenIssuer,
	publisher Publisher, salt string, c clock.Clock, log logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		access:      access,
		publisher:   publisher,
		salt:        salt,
		clock:       c,
		log:         log.With("service", "users"),
	}
}

// Register creates an account once the emailed registration token checks out
// and then asks the mailer to confirm it.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if in.Action != "" && in.Action != common.ActionRegister {
		return nil, common.ErrTokenMismatch
	}
	if err := s.tokens.Redeem(ctx, in.Token, in.Email, common.ActionRegister); err != nil {
		return nil, err
	}

	user := &models.User{
		UserName: in.Username,
		Email:    in.Email,
		Password: cryptox.HashPassword(in.Password, s.salt),
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		exists, err := repo.EmailExists(ctx, in.Email)
		if err != nil {
			return err
		}
		if exists {
			return common.ErrDuplicateEmail
		}

		user, err = repo.Create(ctx, user)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID, "email", user.Email)

	if err := s.publisher.Publish(ctx, ConfirmRegisterQueue, map[string]string{"email": user.Email}, common.ActionRegister); err != nil {
		return user, fmt.Errorf("error publishing confirmation: %w", err)
	}
	return user, nil
}

// Login checks the credentials and returns a bearer token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		s.log.Error(ctx, "login lookup failed", "email", email, "error", err)
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	if !cryptox.CheckPassword(user.Password, password, s.salt) {
		s.log.Warn(ctx, "login with wrong password", "user_id", user.ID)
		return "", common.ErrorUnauthorized
	}

	token, err := s.access.Create(user.ID)
	if err != nil {
		s.log.Error(ctx, "access token signing failed", "user_id", user.ID, "error", err)
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return token, nil
}

// Profile returns the username and email of userID.
func (s *UserService) Profile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{Username: user.UserName, Email: user.Email}, nil
}

// UpdateUsername renames userID provided current matches the stored username.
func (s *UserService) UpdateUsername(ctx context.Context, userID int64, current, username string) error {
	ok, err := s.repomanager.Users(s.db).UpdateUsername(ctx, userID, current, username, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn(ctx, "username update did not match", "user_id", userID)
		return common.ErrInvalidUserData
	}
	s.log.Info(ctx, "username updated", "user_id", userID)
	return nil
}

// UpdateEmail moves userID from current to email. The token must have been
// issued for the new address and the update_email action.
func (s *UserService) UpdateEmail(ctx context.Context, userID int64, current, email, token string) error {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidUserData
		}
		return err
	}
	if user.Email != current {
		s.log.Warn(ctx, "email update did not match", "user_id", userID)
		return common.ErrInvalidUserData
	}

	if err := s.tokens.Redeem(ctx, token, email, common.ActionUpdateEmail); err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		exists, err := repo.EmailExists(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return common.ErrDuplicateEmail
		}

		ok, err := repo.UpdateEmail(ctx, userID, current, email, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrInvalidUserData
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error updating email: %w", err)
	}

	s.log.Info(ctx, "email updated", "user_id", userID)

	if err := s.publisher.Publish(ctx, ConfirmUpdateEmailQueue, map[string]string{"email": email}, common.ActionUpdateEmail); err != nil {
		return fmt.Errorf("error publishing confirmation: %w", err)
	}
	return nil
}

// UpdatePassword replaces the password of userID once current verifies.
func (s *UserService) UpdatePassword(ctx context.Context, userID int64, current, password string) error {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !cryptox.CheckPassword(user.Password, current, s.salt) {
		return common.ErrWrongPassword
	}

	if _, err := repo.UpdatePassword(ctx, userID, cryptox.HashPassword(password, s.salt), s.clock.Now()); err != nil {
		return err
	}
	s.log.Info(ctx, "password updated", "user_id", userID)
	return nil
}
