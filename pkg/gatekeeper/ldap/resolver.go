package ldap

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/database"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"github.com/rs/zerolog"
)

const (
	usernameSuffix       = "_ldap"
	syntheticEmailDomain = "ldap.local"
	maxDisambiguations   = 9
)

// ErrConflict is returned when the directory identity collides with a
// different local user and the strategy does not allow a new record.
var ErrConflict = errors.New("directory identity conflicts with an existing user")

// Identity is what the directory knows about an authenticated user.
type Identity struct {
	Username string
	Email    string
	FullName string
}

// Resolver maps a directory identity to a local user record.
type Resolver struct {
	store    database.UserStore
	strategy string
	logger   zerolog.Logger
}

// NewResolver creates a resolver applying strategy (config.ConflictFail or
// config.ConflictCreateNew) to collisions.
func NewResolver(store database.UserStore, strategy string, logger zerolog.Logger) *Resolver {
	return &Resolver{store: store, strategy: strategy, logger: logger}
}

// Resolve returns the local user for id, creating or updating it as needed.
// A concurrent first login that wins the insert race is picked up by a
// single re-resolution.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (*models.User, error) {
	user, err := r.resolve(ctx, id)
	if errors.Is(err, database.ErrDuplicate) {
		r.logger.Debug().Str("username", id.Username).Msg("concurrent create detected, resolving again")
		user, err = r.resolve(ctx, id)
	}
	return user, err
}

func (r *Resolver) resolve(ctx context.Context, id Identity) (*models.User, error) {
	byEmail, err := r.find(r.store.GetByEmail(ctx, id.Email))
	if err != nil {
		return nil, err
	}
	byUsername, err := r.find(r.store.GetByUsername(ctx, id.Username))
	if err != nil {
		return nil, err
	}

	switch {
	case byEmail != nil && byUsername != nil && byUsername.ID != byEmail.ID:
		return r.conflict(ctx, id, "username belongs to another user")
	case byEmail != nil:
		current := byEmail.UsernameValue()
		if current != "" && current != id.Username {
			return r.conflict(ctx, id, "email belongs to a user with another username")
		}
		return r.refresh(ctx, byEmail, id, current == "")
	case byUsername != nil:
		return r.conflict(ctx, id, "username belongs to a user with another email")
	default:
		return r.create(ctx, id.Email, id.Username, id.FullName)
	}
}

// refresh brings the stored profile in line with the directory.
func (r *Resolver) refresh(ctx context.Context, user *models.User, id Identity, setUsername bool) (*models.User, error) {
	var params database.UpdateParams
	if setUsername {
		params.Username = &id.Username
	}
	if user.FullName != id.FullName {
		params.FullName = &id.FullName
	}
	if params.Empty() {
		return user, nil
	}
	return r.store.Update(ctx, user.ID, params)
}

func (r *Resolver) conflict(ctx context.Context, id Identity, reason string) (*models.User, error) {
	r.logger.Info().
		Str("username", id.Username).
		Str("email", id.Email).
		Str("strategy", r.strategy).
		Str("reason", reason).
		Msg("directory identity conflict")

	if r.strategy != config.ConflictCreateNew {
		return nil, fmt.Errorf("%w: %s", ErrConflict, reason)
	}

	emailTaken, err := r.exists(r.store.GetByEmail(ctx, id.Email))
	if err != nil {
		return nil, err
	}

	for i := 1; i <= maxDisambiguations; i++ {
		candidate := disambiguatedUsername(id.Username, i)
		synthetic := candidate + "@" + syntheticEmailDomain

		existing, err := r.find(r.store.GetByUsername(ctx, candidate))
		if err != nil {
			return nil, err
		}
		if existing != nil {
			// A record created for this identity on an earlier login.
			if existing.Email == id.Email || existing.Email == synthetic {
				return r.refresh(ctx, existing, id, false)
			}
			continue
		}

		email := id.Email
		if emailTaken {
			email = synthetic
		}
		return r.create(ctx, email, candidate, id.FullName)
	}

	return nil, fmt.Errorf("%w: no free username for %s", ErrConflict, id.Username)
}

func (r *Resolver) create(ctx context.Context, email, username, fullName string) (*models.User, error) {
	user := &models.User{
		Email:          email,
		Username:       models.StringPtr(username),
		HashedPassword: models.UnusablePassword,
		FullName:       fullName,
		IsActive:       true,
		IsSuperuser:    false,
	}
	if err := r.store.Create(ctx, user); err != nil {
		return nil, err
	}
	r.logger.Info().Str("user_id", user.ID.String()).Str("username", username).Msg("created user from directory")
	return user, nil
}

func (r *Resolver) find(user *models.User, err error) (*models.User, error) {
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func (r *Resolver) exists(user *models.User, err error) (bool, error) {
	user, err = r.find(user, err)
	return user != nil, err
}

func disambiguatedUsername(username string, n int) string {
	if n == 1 {
		return username + usernameSuffix
	}
	return fmt.Sprintf("%s%s%d", username, usernameSuffix, n)
}
