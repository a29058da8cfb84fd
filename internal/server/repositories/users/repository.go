package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accounts/internal/server/models"
)

// Repository persists user accounts. Update methods report whether a row
// matched their predicate; they never reload the row.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateUsername(ctx context.Context, id int64, current, username string, at time.Time) (bool, error)
	UpdateEmail(ctx context.Context, id int64, current, email string, at time.Time) (bool, error)
	UpdatePassword(ctx context.Context, id int64, password string, at time.Time) (bool, error)
}
