package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/Joseda-hg/plantcare/internal/access"
	"github.com/Joseda-hg/plantcare/internal/db"
	"github.com/Joseda-hg/plantcare/internal/model"
)

// Seed makes sure the Admin and User roles exist. When adminEmail is set the
// account is created if missing and added to Admin either way; an existing
// account keeps its password.
func Seed(ctx context.Context, users UserStore, adminEmail, adminPassword string) error {
	if err := users.EnsureRoles(ctx, access.RoleAdmin, access.RoleUser); err != nil {
		return err
	}
	if adminEmail == "" {
		return nil
	}

	user, err := users.GetUserByEmail(ctx, adminEmail)
	switch {
	case errors.Is(err, db.ErrNotFound):
		_, err = addUser(ctx, users, adminEmail, adminPassword, true)
		return err
	case err != nil:
		return err
	}
	return users.AddUserToRole(ctx, user.ID, access.RoleAdmin)
}

func addUser(ctx context.Context, users UserStore, email, password string, admin bool) (model.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return model.User{}, fmt.Errorf("add user %s: %w", email, err)
	}
	if err := users.EnsureRoles(ctx, access.RoleAdmin, access.RoleUser); err != nil {
		return model.User{}, err
	}

	user, err := users.CreateUser(ctx, email, hash)
	if err != nil {
		return model.User{}, err
	}
	roles := []string{access.RoleUser}
	if admin {
		roles = append([]string{access.RoleAdmin}, roles...)
	}
	for _, role := range roles {
		if err := users.AddUserToRole(ctx, user.ID, role); err != nil {
			return model.User{}, err
		}
	}
	user.Roles = roles
	return user, nil
}
