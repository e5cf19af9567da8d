package auth

import (
	"context"
	"errors"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/database"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
)

var (
	// ErrInvalidCredentials covers unknown identities and wrong passwords alike.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInactiveUser       = errors.New("inactive user")
	ErrUserNotFound       = errors.New("user not found")
)

// LocalAuthenticator verifies passwords against digests held in the store.
type LocalAuthenticator struct {
	store  database.UserStore
	hasher *PasswordHasher
}

// NewLocalAuthenticator creates a local authenticator.
func NewLocalAuthenticator(store database.UserStore, hasher *PasswordHasher) *LocalAuthenticator {
	return &LocalAuthenticator{store: store, hasher: hasher}
}

// AuthenticateByEmail returns the user with this email if password matches.
// The active flag is not checked here.
func (a *LocalAuthenticator) AuthenticateByEmail(ctx context.Context, email, password string) (*models.User, error) {
	return a.authenticate(password, func() (*models.User, error) {
		return a.store.GetByEmail(ctx, email)
	})
}

// AuthenticateByUsername returns the user with this username if password matches.
func (a *LocalAuthenticator) AuthenticateByUsername(ctx context.Context, username, password string) (*models.User, error) {
	return a.authenticate(password, func() (*models.User, error) {
		return a.store.GetByUsername(ctx, username)
	})
}

func (a *LocalAuthenticator) authenticate(password string, lookup func() (*models.User, error)) (*models.User, error) {
	user, err := lookup()
	if errors.Is(err, database.ErrNotFound) {
		a.hasher.VerifyDummy(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !user.HasUsablePassword() {
		a.hasher.VerifyDummy(password)
		return nil, ErrInvalidCredentials
	}
	if !a.hasher.Verify(password, user.HashedPassword) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
