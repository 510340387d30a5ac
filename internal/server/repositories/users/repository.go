package users

import (
	"context"

	"github.com/dmitrijs2005/nocgateway/internal/server/models"
)

// ProfileFields are the profile columns a user may change on their own record.
var ProfileFields = []string{"full_name", "phone", "avatar_url", "locale"}

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	CreateProfile(ctx context.Context, profile *models.Profile) error
	AssignRole(ctx context.Context, userID, tenantID, role string) error
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByID(ctx context.Context, userID string) (*models.Account, error)
	UpdatePassword(ctx context.Context, userID string, hash []byte) error
	UpdateProfile(ctx context.Context, userID string, fields map[string]any) error
}
