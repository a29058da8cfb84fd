// Package tokens provides a PostgreSQL-backed repository for the email
// tokens that gate registration and email changes.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts token, resolving the action by name. An action missing from
// the catalog yields common.ErrUnknownAction and nothing is written.
func (r *PostgresRepository) Create(ctx context.Context, token *models.Token, action string) (*models.Token, error) {
	query := `
		INSERT INTO tokens (token, email, created_at, expires_at, action_id)
		SELECT $1, $2, $3, $4, id FROM actions WHERE action = $5
		RETURNING id, action_id
	`
	err := r.db.QueryRowContext(ctx, query, token.Token, token.Email, token.CreatedAt, token.ExpiresAt, action).
		Scan(&token.ID, &token.ActionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", common.ErrUnknownAction, action)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

// FindWithAction returns the token row matching both token and email exactly,
// joined to its action name. If there is none it returns common.ErrorNotFound.
func (r *PostgresRepository) FindWithAction(ctx context.Context, token, email string) (*models.TokenWithAction, error) {
	query := `
		SELECT t.id, t.token, t.email, t.created_at, t.expires_at, t.action_id, a.action
		FROM tokens t
		JOIN actions a ON a.id = t.action_id
		WHERE t.token = $1 AND t.email = $2
		ORDER BY t.id DESC
		LIMIT 1
	`
	t := &models.TokenWithAction{}
	err := r.db.QueryRowContext(ctx, query, token, email).
		Scan(&t.ID, &t.Token.Token, &t.Email, &t.CreatedAt, &t.ExpiresAt, &t.ActionID, &t.Action)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}
