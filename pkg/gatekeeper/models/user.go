package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UnusablePassword marks accounts whose credentials live in an external
// identity source (LDAP directory or OAuth2 provider). It never verifies.
const UnusablePassword = "!unusable"

// Identity providers that can own a user record.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
	ProviderApple  = "apple"
)

// User represents a user account
type User struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Email          string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Username       *string   `gorm:"uniqueIndex;size:255" json:"username,omitempty"` // LDAP natural key
	HashedPassword string    `gorm:"not null" json:"-"`
	FullName       string    `gorm:"size:255" json:"full_name"`
	IsActive       bool      `gorm:"not null" json:"is_active"`
	IsSuperuser    bool      `gorm:"not null" json:"is_superuser"`

	// OAuth2 provider linkage
	Provider       *string `gorm:"size:32;uniqueIndex:idx_users_provider_identity" json:"provider,omitempty"`
	ProviderUserID *string `gorm:"size:255;uniqueIndex:idx_users_provider_identity" json:"-"`
	Picture        string  `gorm:"size:1024" json:"picture,omitempty"`
}

// BeforeCreate assigns a random ID to records created without one.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UsernameValue returns the username or "" when unset.
func (u *User) UsernameValue() string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}

// HasUsablePassword reports whether a local password can authenticate this user.
func (u *User) HasUsablePassword() bool {
	return u.HashedPassword != "" && !strings.HasPrefix(u.HashedPassword, UnusablePassword)
}

// StringPtr returns a pointer to s, or nil if s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
