package repositories

import (
	"context"

	"github.com/commenter/backend/internal/models"
)

// UserRepository defines the data access contract for accounts.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Get(ctx context.Context, id string) (models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	IsDisabled(ctx context.Context, id string) (bool, error)
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (models.User, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error
	Delete(ctx context.Context, id string) error
}
