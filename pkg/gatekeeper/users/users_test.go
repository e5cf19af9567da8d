package users

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/auth"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/database"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"github.com/rs/zerolog"
)

type testEnv struct {
	store  *database.GormStore
	hasher *auth.PasswordHasher
	tokens *auth.TokenService
	router *gin.Engine
}

func setupTestEnv(t *testing.T) *testEnv {
	db, err := database.Connect(":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	env := &testEnv{
		store:  database.NewGormStore(db),
		hasher: auth.NewPasswordHasher(auth.AlgorithmBcrypt),
		tokens: auth.NewTokenService([]byte("test-secret-0123456789abcdef0123456789"), "gatekeeper"),
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(env.store, env.hasher, zerolog.Nop())
	handler.RegisterRoutes(r.Group("/users"), auth.AuthMiddleware(env.tokens, env.store))
	env.router = r
	return env
}

func createTestUser(t *testing.T, env *testEnv, email, password string, superuser bool) *models.User {
	hash, err := env.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	user := &models.User{
		Email:          email,
		HashedPassword: hash,
		FullName:       "Test User",
		IsActive:       true,
		IsSuperuser:    superuser,
	}
	if err := env.store.Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func doRequest(env *testEnv, method, path string, body any, user *models.User) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, _ := env.tokens.Issue(user.ID.String(), time.Hour, auth.PurposeAccess)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestSignup(t *testing.T) {
	env := setupTestEnv(t)

	w := doRequest(env, http.MethodPost, "/users/signup", map[string]string{
		"email":     "new@example.com",
		"password":  "password123",
		"full_name": "New User",
	}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp auth.UserResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Email != "new@example.com" {
		t.Errorf("Expected email 'new@example.com', got '%s'", resp.Email)
	}
	if resp.FullName != "New User" {
		t.Errorf("Expected full name 'New User', got '%s'", resp.FullName)
	}
	if !resp.IsActive || resp.IsSuperuser {
		t.Errorf("Expected an active regular user, got active=%v superuser=%v", resp.IsActive, resp.IsSuperuser)
	}

	stored, err := env.store.GetByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("Expected user to be stored: %v", err)
	}
	if !env.hasher.Verify("password123", stored.HashedPassword) {
		t.Error("Expected stored password to verify")
	}
	if bytes.Contains(w.Body.Bytes(), []byte("hashed_password")) {
		t.Error("Expected response not to expose the password digest")
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env, "taken@example.com", "password123", false)

	w := doRequest(env, http.MethodPost, "/users/signup", map[string]string{
		"email":    "taken@example.com",
		"password": "password123",
	}, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestSignup_Validation(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing email", map[string]string{"password": "password123"}},
		{"invalid email", map[string]string{"email": "not-an-email", "password": "password123"}},
		{"short password", map[string]string{"email": "a@example.com", "password": "short"}},
		{"long password", map[string]string{"email": "a@example.com", "password": "0123456789012345678901234567890123456789x"}},
		{"password over 72 bytes", map[string]string{"email": "a@example.com", "password": strings.Repeat("密", 40)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(env, http.MethodPost, "/users/signup", tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestGetMe(t *testing.T) {
	env := setupTestEnv(t)
	user := createTestUser(t, env, "me@example.com", "password123", false)

	w := doRequest(env, http.MethodGet, "/users/me", nil, user)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp auth.UserResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ID != user.ID {
		t.Errorf("Expected ID %s, got %s", user.ID, resp.ID)
	}

	w = doRequest(env, http.MethodGet, "/users/me", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without token, got %d", w.Code)
	}
}

func TestUpdateMe(t *testing.T) {
	env := setupTestEnv(t)
	user := createTestUser(t, env, "me@example.com", "password123", false)
	createTestUser(t, env, "other@example.com", "password123", false)

	w := doRequest(env, http.MethodPatch, "/users/me", map[string]string{
		"full_name": "Renamed",
		"email":     "renamed@example.com",
	}, user)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp auth.UserResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.FullName != "Renamed" || resp.Email != "renamed@example.com" {
		t.Errorf("Expected updated profile, got %+v", resp)
	}

	// Keeping the same email is not a conflict
	w = doRequest(env, http.MethodPatch, "/users/me", map[string]string{"email": "renamed@example.com"}, user)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for unchanged email, got %d", w.Code)
	}

	w = doRequest(env, http.MethodPatch, "/users/me", map[string]string{"email": "other@example.com"}, user)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestUpdatePassword(t *testing.T) {
	env := setupTestEnv(t)
	user := createTestUser(t, env, "me@example.com", "password123", false)

	tests := []struct {
		name     string
		current  string
		next     string
		expected int
	}{
		{"wrong current password", "wrongpass1", "newpassword1", http.StatusBadRequest},
		{"same password", "password123", "password123", http.StatusBadRequest},
		{"new password too short", "password123", "short", http.StatusBadRequest},
		{"new password over 72 bytes", "password123", strings.Repeat("密", 40), http.StatusBadRequest},
		{"success", "password123", "newpassword1", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(env, http.MethodPatch, "/users/me/password", map[string]string{
				"current_password": tt.current,
				"new_password":     tt.next,
			}, user)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}

	stored, _ := env.store.GetByID(context.Background(), user.ID)
	if !env.hasher.Verify("newpassword1", stored.HashedPassword) {
		t.Error("Expected the new password to verify")
	}
	if env.hasher.Verify("password123", stored.HashedPassword) {
		t.Error("Expected the old password to stop verifying")
	}
}

func TestDeleteMe(t *testing.T) {
	env := setupTestEnv(t)
	user := createTestUser(t, env, "me@example.com", "password123", false)

	w := doRequest(env, http.MethodDelete, "/users/me", nil, user)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if _, err := env.store.GetByID(context.Background(), user.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected user to be deleted, got %v", err)
	}
}

func TestDeleteMe_Superuser(t *testing.T) {
	env := setupTestEnv(t)
	admin := createTestUser(t, env, "admin@example.com", "password123", true)

	w := doRequest(env, http.MethodDelete, "/users/me", nil, admin)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}

	if _, err := env.store.GetByID(context.Background(), admin.ID); err != nil {
		t.Errorf("Expected superuser to remain, got %v", err)
	}
}
