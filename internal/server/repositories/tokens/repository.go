package tokens

import (
	"context"

	"github.com/dmitrijs2005/accounts/internal/server/models"
)

// Repository stores action tokens. Rows are append-only.
type Repository interface {
	Create(ctx context.Context, token *models.Token, action string) (*models.Token, error)
	FindWithAction(ctx context.Context, token, email string) (*models.TokenWithAction, error)
}
