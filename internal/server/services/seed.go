package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/dmitrijs2005/ecomauth/internal/logging"
)

type RoleSeed struct {
	Name        string
	Description string
}

type UserSeed struct {
	FirstName string
	LastName  string
	Email     string
	Role      string
}

var (
	DefaultRoles = []RoleSeed{
		{Name: common.RoleAdmin, Description: "Role for admin users"},
		{Name: common.RoleBusinessUser, Description: "Role for business users"},
	}

	DefaultUsers = []UserSeed{
		{FirstName: "admin", LastName: "admin", Email: "admin@example.com", Role: common.RoleAdmin},
		{FirstName: "guest", LastName: "guest", Email: "guest@example.com", Role: common.RoleBusinessUser},
	}
)

// Seed makes sure the well-known roles and users exist. Seed users get
// password; existing ones have their names, role and password reset. It is
// safe to run on every start.
func Seed(ctx context.Context, store *CredentialStore, roles []RoleSeed, users []UserSeed, password string, logger logging.Logger) error {
	logger.Info(ctx, "seeding roles")
	for _, r := range roles {
		if _, err := store.EnsureRole(ctx, r.Name, r.Description); err != nil {
			return fmt.Errorf("seeding role %q: %w", r.Name, err)
		}
	}

	logger.Info(ctx, "seeding users")
	for _, u := range users {
		existing, err := store.LookupByEmail(ctx, u.Email)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			_, err = store.CreateUser(ctx, NewUser{
				FirstName: u.FirstName,
				LastName:  u.LastName,
				Email:     u.Email,
				Password:  password,
				Role:      u.Role,
			})
		case err == nil:
			_, err = store.UpdateUser(ctx, existing.ID, UserUpdate{
				FirstName: &u.FirstName,
				LastName:  &u.LastName,
				Password:  &password,
				Role:      &u.Role,
			})
		}
		if err != nil {
			return fmt.Errorf("seeding user %q: %w", u.Email, err)
		}
	}

	logger.Info(ctx, "seeding finished", "roles", len(roles), "users", len(users))
	return nil
}
