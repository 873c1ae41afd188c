package roles

import (
	"context"

	"github.com/dmitrijs2005/ecomauth/internal/server/models"
)

type Repository interface {
	// GetByName matches role_name case-insensitively.
	GetByName(ctx context.Context, name string) (*models.Role, error)
	// Ensure creates the role or refreshes its description.
	Ensure(ctx context.Context, name, description string) (*models.Role, error)
	List(ctx context.Context) ([]*models.Role, error)
}
