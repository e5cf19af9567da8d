package models

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	return db
}

func TestAutoMigrate(t *testing.T) {
	db := setupTestDB(t)

	err := AutoMigrate(db)
	if err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}

	if !db.Migrator().HasTable("users") {
		t.Error("Expected table users to exist")
	}
	if !db.Migrator().HasIndex(&User{}, "idx_users_provider_identity") {
		t.Error("Expected provider identity index to exist")
	}
}

func TestUserModel(t *testing.T) {
	db := setupTestDB(t)
	AutoMigrate(db)

	user := User{
		Email:          "test@example.com",
		HashedPassword: "hashed_password",
		FullName:       "Test User",
		IsActive:       true,
	}

	result := db.Create(&user)
	if result.Error != nil {
		t.Fatalf("Failed to create user: %v", result.Error)
	}

	if user.ID == uuid.Nil {
		t.Error("Expected user ID to be set after create")
	}

	// Test unique email constraint
	user2 := User{
		Email:          "test@example.com",
		HashedPassword: "another_hash",
		FullName:       "Another User",
	}
	result = db.Create(&user2)
	if result.Error == nil {
		t.Error("Expected error when creating user with duplicate email")
	}
}

func TestUsernameUniqueness(t *testing.T) {
	db := setupTestDB(t)
	AutoMigrate(db)

	// Users without a username must not collide with each other
	for _, email := range []string{"a@example.com", "b@example.com"} {
		if err := db.Create(&User{Email: email, HashedPassword: "hash"}).Error; err != nil {
			t.Fatalf("Failed to create user without username: %v", err)
		}
	}

	first := User{Email: "c@example.com", Username: StringPtr("alice"), HashedPassword: "hash"}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	second := User{Email: "d@example.com", Username: StringPtr("alice"), HashedPassword: "hash"}
	if err := db.Create(&second).Error; err == nil {
		t.Error("Expected error when creating user with duplicate username")
	}
}

func TestProviderIdentityUniqueness(t *testing.T) {
	db := setupTestDB(t)
	AutoMigrate(db)

	first := User{
		Email:          "a@example.com",
		HashedPassword: UnusablePassword,
		Provider:       StringPtr(ProviderGitHub),
		ProviderUserID: StringPtr("42"),
	}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	second := User{
		Email:          "b@example.com",
		HashedPassword: UnusablePassword,
		Provider:       StringPtr(ProviderGitHub),
		ProviderUserID: StringPtr("42"),
	}
	if err := db.Create(&second).Error; err == nil {
		t.Error("Expected error when linking the same provider identity twice")
	}
}

func TestHasUsablePassword(t *testing.T) {
	tests := []struct {
		hash string
		want bool
	}{
		{"", false},
		{UnusablePassword, false},
		{"$2a$10$abcdefghijklmnopqrstuv", true},
	}

	for _, tt := range tests {
		u := User{HashedPassword: tt.hash}
		if got := u.HasUsablePassword(); got != tt.want {
			t.Errorf("HasUsablePassword(%q) = %v, expected %v", tt.hash, got, tt.want)
		}
	}
}
