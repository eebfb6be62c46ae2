// Package users manages CertGuard accounts and role-checked login.
package users

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// RoleMismatchError is returned when the credentials are valid but the account
// holds a different role than the one requested.
type RoleMismatchError struct {
	Requested Role
}

func (e *RoleMismatchError) Error() string {
	return fmt.Sprintf("User is not registered as a(n) %s.", e.Requested)
}

// SeedAccount describes an account created at startup.
type SeedAccount struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Role     string `mapstructure:"role"`
}

// DemoAccounts are the development accounts, one per role.
func DemoAccounts() []SeedAccount {
	return []SeedAccount{
		{Email: "admin@certguard.com", Password: "password123", Role: string(RoleAdmin)},
		{Email: "mit@edu", Password: "password123", Role: string(RoleInstitution)},
		{Email: "verifier@google.com", Password: "password123", Role: string(RoleVerifier)},
	}
}

// Service implements account business logic.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, password string, role Role) (*User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Email: email, PasswordHash: string(hash), Role: role}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login verifies the credentials and that the account holds role.
func (s *Service) Login(ctx context.Context, email, password string, role Role) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.Role != role {
		return nil, &RoleMismatchError{Requested: role}
	}
	return u, nil
}

// Seed creates the given accounts, skipping those that already exist.
func (s *Service) Seed(ctx context.Context, accounts []SeedAccount) error {
	for _, a := range accounts {
		role, err := ParseRole(a.Role)
		if err != nil {
			return fmt.Errorf("seed %s: %w", a.Email, err)
		}
		_, err = s.Register(ctx, a.Email, a.Password, role)
		if errors.Is(err, ErrDuplicateEmail) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", a.Email, err)
		}
		s.logger.Info("seeded account", zap.String("email", a.Email), zap.String("role", string(role)))
	}
	return nil
}
