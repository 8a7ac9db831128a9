// Copyright 2026 The Authgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/authgate/authgate/internal/authz"
	"github.com/authgate/authgate/internal/identity"
)

const pgUniqueViolation = "23505"

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, first_name, last_name,
	status, enabled, failed_login_attempts, locked_at, last_login_at,
	created_at, updated_at`

func (r *UserRepository) scanUser(row pgx.Row) (*identity.User, error) {
	var user identity.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Status, &user.Enabled,
		&user.FailedLoginAttempts, &user.LockedAt, &user.LastLoginAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// FindByUsername retrieves a user by username with roles eagerly loaded
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*identity.User, error) {
	user, err := r.scanUser(r.db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, err
	}
	if err := r.loadRoles(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID retrieves a user by ID with roles eagerly loaded
func (r *UserRepository) FindByID(ctx context.Context, id string) (*identity.User, error) {
	user, err := r.scanUser(r.db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadRoles(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// List retrieves all users with their roles
func (r *UserRepository) List(ctx context.Context) ([]*identity.User, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*identity.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	for _, user := range users {
		if err := r.loadRoles(ctx, user); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// loadRoles batch-fetches the user's roles and their permission sets.
func (r *UserRepository) loadRoles(ctx context.Context, user *identity.User) error {
	rows, err := r.db.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.active, r.created_at, r.updated_at,
			COALESCE(array_agg(rp.permission) FILTER (WHERE rp.permission IS NOT NULL), '{}')
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		WHERE ur.user_id = $1
		GROUP BY r.id, r.name, r.description, r.active, r.created_at, r.updated_at
		ORDER BY r.name
	`, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load roles: %w", err)
	}
	defer rows.Close()

	user.Roles = nil
	for rows.Next() {
		var role authz.Role
		if err := rows.Scan(
			&role.ID, &role.Name, &role.Description, &role.Active,
			&role.CreatedAt, &role.UpdatedAt, &role.Permissions,
		); err != nil {
			return fmt.Errorf("failed to scan role: %w", err)
		}
		user.Roles = append(user.Roles, role)
	}
	return rows.Err()
}

// Save upserts a user and replaces its role assignments
func (r *UserRepository) Save(ctx context.Context, user *identity.User) (*identity.User, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	var createdAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO users (
			id, username, email, password_hash, first_name, last_name,
			status, enabled, failed_login_attempts, locked_at, last_login_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			status = EXCLUDED.status,
			enabled = EXCLUDED.enabled,
			failed_login_attempts = EXCLUDED.failed_login_attempts,
			locked_at = EXCLUDED.locked_at,
			last_login_at = EXCLUDED.last_login_at,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`,
		user.ID, user.Username, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.Status, user.Enabled,
		user.FailedLoginAttempts, user.LockedAt, user.LastLoginAt, now,
	).Scan(&createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, identity.ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, user.ID); err != nil {
		return nil, fmt.Errorf("failed to clear role assignments: %w", err)
	}
	for _, role := range user.Roles {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`,
			user.ID, role.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to assign role %s: %w", role.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	user.CreatedAt = createdAt
	user.UpdatedAt = now
	return user, nil
}

// ExistsByUsername checks whether a username is taken
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// ExistsByEmail checks whether an email is taken
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// RecordFailedLogin increments the failed-login counter and locks the
// account at the threshold, as one atomic statement. Concurrent attempts
// serialize on the row, so the threshold is never skipped or
// double-counted.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, userID string, threshold int, now time.Time) (*identity.User, error) {
	user := &identity.User{ID: userID}
	err := r.db.pool.QueryRow(ctx, `
		UPDATE users SET
			failed_login_attempts = failed_login_attempts + 1,
			status = CASE WHEN failed_login_attempts + 1 >= $2 THEN 'LOCKED' ELSE status END,
			locked_at = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_at END,
			updated_at = $3
		WHERE id = $1
		RETURNING failed_login_attempts, status, locked_at
	`, userID, threshold, now).Scan(&user.FailedLoginAttempts, &user.Status, &user.LockedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to record failed login: %w", err)
	}
	return user, nil
}

// ResetFailedLogins resets the lockout counters in one atomic statement.
func (r *UserRepository) ResetFailedLogins(ctx context.Context, userID string, now time.Time, demote bool) error {
	var tag pgconn.CommandTag
	var err error
	if demote {
		tag, err = r.db.pool.Exec(ctx, `
			UPDATE users SET
				failed_login_attempts = 0,
				locked_at = NULL,
				status = CASE WHEN status = 'LOCKED' THEN 'ACTIVE' ELSE status END,
				updated_at = $2
			WHERE id = $1
		`, userID, now)
	} else {
		tag, err = r.db.pool.Exec(ctx, `
			UPDATE users SET
				failed_login_attempts = 0,
				locked_at = NULL,
				last_login_at = $2,
				updated_at = $2
			WHERE id = $1
		`, userID, now)
	}
	if err != nil {
		return fmt.Errorf("failed to reset lockout counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}
