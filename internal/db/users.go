package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Joseda-hg/plantcare/internal/model"
)

// EnsureRoles inserts any of the given role names that do not exist yet.
func (s *Store) EnsureRoles(ctx context.Context, names ...string) error {
	for _, name := range names {
		_, err := s.DB.ExecContext(ctx,
			rebind(s.driver, "INSERT INTO roles (name) VALUES (?) ON CONFLICT (name) DO NOTHING"), name)
		if err != nil {
			return fmt.Errorf("ensure role %q: %w", name, translateError(err))
		}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (model.User, error) {
	user := model.User{
		Email:        normalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	err := s.DB.QueryRowContext(ctx,
		rebind(s.driver, "INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?) RETURNING user_id"),
		user.Email, user.PasswordHash, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return model.User{}, fmt.Errorf("create user %s: %w", user.Email, translateError(err))
	}
	return user, nil
}

// GetUserByEmail loads a user and its role names. It returns ErrNotFound for
// unknown addresses.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	err := s.DB.QueryRowContext(ctx,
		rebind(s.driver, "SELECT user_id, email, password_hash, created_at FROM users WHERE email = ?"),
		normalizeEmail(email),
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", email, translateError(err))
	}

	roles, err := s.RolesForUser(ctx, user.ID)
	if err != nil {
		return model.User{}, err
	}
	user.Roles = roles
	return user, nil
}

func (s *Store) SetPassword(ctx context.Context, userID int64, passwordHash string) error {
	result, err := s.DB.ExecContext(ctx,
		rebind(s.driver, "UPDATE users SET password_hash = ? WHERE user_id = ?"), passwordHash, userID)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AddUserToRole(ctx context.Context, userID int64, role string) error {
	_, err := s.DB.ExecContext(ctx,
		rebind(s.driver, `INSERT INTO user_roles (user_id, role_id)
SELECT CAST(? AS BIGINT), role_id FROM roles WHERE name = ?
ON CONFLICT (user_id, role_id) DO NOTHING`),
		userID, role,
	)
	if err != nil {
		return fmt.Errorf("add user %d to role %q: %w", userID, role, translateError(err))
	}
	return nil
}

func (s *Store) RolesForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, rebind(s.driver, `SELECT r.name FROM roles r
JOIN user_roles ur ON ur.role_id = r.role_id
WHERE ur.user_id = ?
ORDER BY r.name`), userID)
	if err != nil {
		return nil, fmt.Errorf("roles for user %d: %w", userID, err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
