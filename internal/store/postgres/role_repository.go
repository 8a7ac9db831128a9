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
	"github.com/authgate/authgate/internal/id"
)

// RoleRepository implements authz.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// FindByName retrieves a role and its permission set by name
func (r *RoleRepository) FindByName(ctx context.Context, name string) (*authz.Role, error) {
	var role authz.Role
	err := r.db.pool.QueryRow(ctx, `
		SELECT r.id, r.name, r.description, r.active, r.created_at, r.updated_at,
			COALESCE(array_agg(rp.permission) FILTER (WHERE rp.permission IS NOT NULL), '{}')
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		WHERE r.name = $1
		GROUP BY r.id, r.name, r.description, r.active, r.created_at, r.updated_at
	`, name).Scan(
		&role.ID, &role.Name, &role.Description, &role.Active,
		&role.CreatedAt, &role.UpdatedAt, &role.Permissions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// ExistsByName checks whether a role with the given name exists
func (r *RoleRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return exists, nil
}

// Save upserts a role and replaces its permission set
func (r *RoleRepository) Save(ctx context.Context, role *authz.Role) (*authz.Role, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if role.ID == "" {
		role.ID = id.New()
	}

	now := time.Now()
	var createdAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO roles (id, name, description, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, role.ID, role.Name, role.Description, role.Active, now).Scan(&role.ID, &createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, authz.ErrRoleAlreadyExists
		}
		return nil, fmt.Errorf("failed to save role: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
		return nil, fmt.Errorf("failed to clear permissions: %w", err)
	}
	for _, permission := range role.Permissions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission) VALUES ($1, $2)`,
			role.ID, permission,
		); err != nil {
			return nil, fmt.Errorf("failed to add permission %s: %w", permission, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	role.CreatedAt = createdAt
	role.UpdatedAt = now
	return role, nil
}
