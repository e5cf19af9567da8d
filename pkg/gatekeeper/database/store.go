package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
)

var (
	// ErrNotFound is returned when no user matches a lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned when a write violates the email, username or
	// provider identity uniqueness constraint.
	ErrDuplicate = errors.New("user already exists")
)

// UserStore is the persistent store for user records.
// Each call is atomic and visible to subsequent reads.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByProvider(ctx context.Context, provider, providerUserID string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	// Search lists users whose email or full name contains query, ignoring
	// case, ordered by email.
	Search(ctx context.Context, query string) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UpdateParams defines the optional fields for updating a user.
// Only the fields that are not nil will be updated.
type UpdateParams struct {
	Email          *string
	Username       *string
	HashedPassword *string
	FullName       *string
	IsActive       *bool
	IsSuperuser    *bool
	Provider       *string
	ProviderUserID *string
	Picture        *string
}

// Empty reports whether no field is set.
func (p UpdateParams) Empty() bool {
	return p.Email == nil && p.Username == nil && p.HashedPassword == nil &&
		p.FullName == nil && p.IsActive == nil && p.IsSuperuser == nil &&
		p.Provider == nil && p.ProviderUserID == nil && p.Picture == nil
}
