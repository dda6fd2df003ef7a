package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/storefront-next/internal/config"
	"github.com/storefront-next/internal/constants"
	"github.com/storefront-next/internal/models"
	"github.com/storefront-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newAuthTestEnv(t *testing.T, name string) (*gorm.DB, *UserAuthService) {
	t.Helper()
	dsn := fmt.Sprintf("file:auth_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	cfg := &config.Config{
		UserJWT: config.JWTConfig{SecretKey: "test-secret-key-0123456789abcdef", ExpireHours: 24},
	}
	return db, NewUserAuthService(cfg, repository.NewUserRepository(db))
}

func TestRegisterAndLogin(t *testing.T) {
	_, svc := newAuthTestEnv(t, "register_login")

	user, token, expiresAt, err := svc.Register(" Alice@Example.COM ", "password123", "")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email should be normalized, got: %s", user.Email)
	}
	if user.DisplayName != "alice" {
		t.Fatalf("display name should fall back to email local part, got: %s", user.DisplayName)
	}
	if token == "" || !expiresAt.After(time.Now()) {
		t.Fatalf("expected a valid token with future expiry")
	}

	claims, err := svc.ParseUserJWT(token)
	if err != nil {
		t.Fatalf("ParseUserJWT error: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != user.Email {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	logged, _, _, err := svc.Login("alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if logged.ID != user.ID {
		t.Fatalf("unexpected user id: %d", logged.ID)
	}
	if logged.LastLoginAt == nil {
		t.Fatalf("last login should be recorded")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	_, svc := newAuthTestEnv(t, "dup_email")
	if _, _, _, err := svc.Register("bob@example.com", "password123", "Bob"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	_, _, _, err := svc.Register("BOB@example.com", "password456", "Bob")
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	_, svc := newAuthTestEnv(t, "validation")
	if _, _, _, err := svc.Register("not-an-email", "password123", ""); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got: %v", err)
	}
	if _, _, _, err := svc.Register("carol@example.com", "short", ""); !errors.Is(err, ErrPasswordTooWeak) {
		t.Fatalf("expected ErrPasswordTooWeak, got: %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	db, svc := newAuthTestEnv(t, "login_failures")
	if _, _, _, err := svc.Register("dave@example.com", "password123", ""); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, _, _, err := svc.Login("dave@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got: %v", err)
	}
	if _, _, _, err := svc.Login("nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got: %v", err)
	}

	if err := db.Model(&models.User{}).Where("email = ?", "dave@example.com").
		Update("status", constants.UserStatusDisabled).Error; err != nil {
		t.Fatalf("disable user failed: %v", err)
	}
	if _, _, _, err := svc.Login("dave@example.com", "password123"); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected ErrUserDisabled, got: %v", err)
	}
}

func TestParseUserJWTRejectsTamperedToken(t *testing.T) {
	_, svc := newAuthTestEnv(t, "tampered")
	_, token, _, err := svc.Register("eve@example.com", "password123", "")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.ParseUserJWT(token + "x"); err == nil {
		t.Fatalf("tampered token should fail to parse")
	}
}
