package actions

import (
	"context"

	"github.com/dmitrijs2005/accounts/internal/server/models"
)

// Repository reads the action catalog seeded by migrations.
type Repository interface {
	List(ctx context.Context) ([]models.Action, error)
}
