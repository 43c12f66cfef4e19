package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"libraryapi/pkg/auth"
	"libraryapi/pkg/domain"
)

// SeedUser is a configured account created on first start.
type SeedUser struct {
	Username string
	Email    string
	Password string
	Role     domain.UserRole
}

// SeedUsers creates the given accounts when the user table is empty.
// It returns the number of users created.
func SeedUsers(ctx context.Context, users UserStore, seeds []SeedUser) (int, error) {
	count, err := users.UserCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	created := 0
	for _, seed := range seeds {
		username := strings.TrimSpace(seed.Username)
		if username == "" || seed.Password == "" {
			return created, fmt.Errorf("seed user %d: username and password required", created)
		}
		if seed.Role != domain.RoleAdmin && seed.Role != domain.RoleUser {
			return created, fmt.Errorf("seed user %q: invalid role %q", username, seed.Role)
		}
		hash, err := auth.HashPassword(seed.Password)
		if err != nil {
			return created, fmt.Errorf("seed user %q: %w", username, err)
		}
		email := strings.TrimSpace(seed.Email)
		if email == "" {
			email = username + "@library.local"
		}
		user := domain.User{
			ID:           uuid.NewString(),
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			Role:         seed.Role,
			CreatedAt:    now,
		}
		if err := users.SaveUser(ctx, user); err != nil {
			return created, fmt.Errorf("seed user %q: %w", username, err)
		}
		created++
	}
	return created, nil
}
