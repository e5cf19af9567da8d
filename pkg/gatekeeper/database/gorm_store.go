package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"gorm.io/gorm"
)

// GormStore is a UserStore backed by a relational database through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store using an already migrated database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying database handle.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *GormStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *GormStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.first(ctx, "username = ?", username)
}

func (s *GormStore) GetByProvider(ctx context.Context, provider, providerUserID string) (*models.User, error) {
	return s.first(ctx, "provider = ? AND provider_user_id = ?", provider, providerUserID)
}

func (s *GormStore) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("email ASC").Find(&users).Error; err != nil {
		return nil, translateError(err)
	}
	return users, nil
}

func (s *GormStore) Search(ctx context.Context, query string) ([]models.User, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?", pattern, pattern).
		Order("email ASC").
		Find(&users).Error
	if err != nil {
		return nil, translateError(err)
	}
	return users, nil
}

func (s *GormStore) Create(ctx context.Context, user *models.User) error {
	return translateError(s.db.WithContext(ctx).Create(user).Error)
}

func (s *GormStore) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*models.User, error) {
	updates := make(map[string]interface{})
	if params.Email != nil {
		updates["email"] = *params.Email
	}
	if params.Username != nil {
		updates["username"] = nullable(*params.Username)
	}
	if params.HashedPassword != nil {
		updates["hashed_password"] = *params.HashedPassword
	}
	if params.FullName != nil {
		updates["full_name"] = *params.FullName
	}
	if params.IsActive != nil {
		updates["is_active"] = *params.IsActive
	}
	if params.IsSuperuser != nil {
		updates["is_superuser"] = *params.IsSuperuser
	}
	if params.Provider != nil {
		updates["provider"] = nullable(*params.Provider)
	}
	if params.ProviderUserID != nil {
		updates["provider_user_id"] = nullable(*params.ProviderUserID)
	}
	if params.Picture != nil {
		updates["picture"] = *params.Picture
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, translateError(result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}

	return s.GetByID(ctx, id)
}

func (s *GormStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) first(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// nullable stores empty optional identifiers as NULL so they stay out of
// the unique indexes.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// translateError maps driver errors onto ErrNotFound and ErrDuplicate.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// isUniqueViolation detects unique constraint violations for every supported
// relational driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
