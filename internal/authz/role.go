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

// Package authz implements the role and permission model. Roles carry
// flat sets of permission strings; a user's effective permission set is
// the union across its active roles.
package authz

import (
	"context"
	"errors"
	"time"
)

// MaxRoleNameLength is the maximum allowed role name length.
const MaxRoleNameLength = 50

var (
	// ErrRoleNotFound is returned when a role doesn't exist
	ErrRoleNotFound = errors.New("role not found")

	// ErrRoleAlreadyExists is returned when creating a role whose name is taken
	ErrRoleAlreadyExists = errors.New("role already exists")

	// ErrInvalidRoleName is returned when a role name is empty or too long
	ErrInvalidRoleName = errors.New("invalid role name")
)

// Role is a named collection of permissions. Inactive roles keep their
// permission set and assignments but contribute nothing to effective
// permissions.
type Role struct {
	ID          string
	Name        string
	Description string
	Active      bool
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasPermission reports whether the role carries the exact permission.
// Matching is exact string comparison, no wildcard or hierarchy.
func (r *Role) HasPermission(permission string) bool {
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the role carries at least one of the
// given permissions. An empty argument list yields false.
func (r *Role) HasAnyPermission(permissions ...string) bool {
	for _, p := range permissions {
		if r.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the role carries every given
// permission. An empty argument list yields true.
func (r *Role) HasAllPermissions(permissions ...string) bool {
	for _, p := range permissions {
		if !r.HasPermission(p) {
			return false
		}
	}
	return true
}

// AddPermission adds a permission to the role. Adding a permission the
// role already has is a no-op.
func (r *Role) AddPermission(permission string) {
	if r.HasPermission(permission) {
		return
	}
	r.Permissions = append(r.Permissions, permission)
}

// RemovePermission removes a permission from the role. Removing an
// absent permission is a no-op.
func (r *Role) RemovePermission(permission string) {
	for i, p := range r.Permissions {
		if p == permission {
			r.Permissions = append(r.Permissions[:i], r.Permissions[i+1:]...)
			return
		}
	}
}

// PermissionUnion computes the effective permission set across roles.
// Inactive roles are skipped.
func PermissionUnion(roles []Role) map[string]struct{} {
	union := make(map[string]struct{})
	for _, role := range roles {
		if !role.Active {
			continue
		}
		for _, p := range role.Permissions {
			union[p] = struct{}{}
		}
	}
	return union
}

// RoleRepository abstracts role persistence
type RoleRepository interface {
	FindByName(ctx context.Context, name string) (*Role, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, role *Role) (*Role, error)
}
