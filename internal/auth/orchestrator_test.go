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

package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/audit"
	"github.com/authgate/authgate/internal/authz"
	"github.com/authgate/authgate/internal/id"
	"github.com/authgate/authgate/internal/identity"
	"github.com/authgate/authgate/internal/token"
)

type memUserRepo struct {
	users map[string]*identity.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*identity.User)}
}

func (m *memUserRepo) FindByUsername(ctx context.Context, username string) (*identity.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) FindByID(ctx context.Context, userID string) (*identity.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (m *memUserRepo) List(ctx context.Context) ([]*identity.User, error) {
	var out []*identity.User
	for _, u := range m.users {
		c := *u
		out = append(out, &c)
	}
	return out, nil
}

func (m *memUserRepo) Save(ctx context.Context, user *identity.User) (*identity.User, error) {
	if user.ID == "" {
		user.ID = id.New()
	}
	c := *user
	m.users[user.ID] = &c
	return user, nil
}

func (m *memUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := m.FindByUsername(ctx, username)
	return err == nil, nil
}

func (m *memUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUserRepo) RecordFailedLogin(ctx context.Context, userID string, threshold int, now time.Time) (*identity.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	u.RegisterFailedLogin(now, threshold)
	c := *u
	return &c, nil
}

func (m *memUserRepo) ResetFailedLogins(ctx context.Context, userID string, now time.Time, demote bool) error {
	u, ok := m.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	if demote {
		u.Unlock()
	} else {
		u.ResetFailedLogins()
		u.LastLoginAt = &now
	}
	return nil
}

type memRoleRepo struct {
	roles map[string]*authz.Role
}

func newMemRoleRepo() *memRoleRepo {
	return &memRoleRepo{roles: make(map[string]*authz.Role)}
}

func (m *memRoleRepo) FindByName(ctx context.Context, name string) (*authz.Role, error) {
	r, ok := m.roles[name]
	if !ok {
		return nil, authz.ErrRoleNotFound
	}
	c := *r
	return &c, nil
}

func (m *memRoleRepo) ExistsByName(ctx context.Context, name string) (bool, error) {
	_, ok := m.roles[name]
	return ok, nil
}

func (m *memRoleRepo) Save(ctx context.Context, role *authz.Role) (*authz.Role, error) {
	if role.ID == "" {
		role.ID = id.New()
	}
	c := *role
	m.roles[role.Name] = &c
	return role, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *identity.Service, *memUserRepo) {
	t.Helper()

	users := newMemUserRepo()
	roles := newMemRoleRepo()
	roles.Save(context.Background(), &authz.Role{
		Name:        authz.RoleUser,
		Active:      true,
		Permissions: authz.UserPermissions,
	})

	hasher := identity.NewPasswordHasher(1024, 1, 1, 16, 32)
	auditLogger := audit.NewSlogLogger()
	identityService := identity.NewService(users, roles, hasher, auditLogger, 5, 30*time.Minute)

	secret := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{'k'}, 32))
	tokenService, err := token.New(secret, 10*time.Hour)
	require.NoError(t, err)

	return NewOrchestrator(identityService, tokenService, auditLogger), identityService, users
}

// TestPurpose: Validates the end-to-end login flow: credentials in, bearer token out, token resolves back to the same principal.
// Scope: Unit Test
// Security: Authentication flow integrity
// Expected: Valid credentials yield a token whose principal matches the user; bad credentials yield no token.
// Test Case ID: AUT-01
func TestAuth_Orchestrator_Login(t *testing.T) {
	o, identityService, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := identityService.Register(ctx, identity.RegisterParams{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)

	signed, err := o.Login(ctx, "bob", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, signed)

	principal, err := o.ResolvePrincipal(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "bob", principal.Username)
	assert.Contains(t, principal.Permissions(), authz.PermProfileRead)

	_, err = o.Login(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = o.Login(ctx, "nobody", "secret123")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

// TestPurpose: Validates that a token outlives neither a disabled nor a locked account.
// Scope: Unit Test
// Security: Post-issuance account standing
// Expected: ErrAccountNotValid when the subject was disabled or locked after the token was issued.
// Test Case ID: AUT-02
func TestAuth_Orchestrator_ResolvePrincipal_Standing(t *testing.T) {
	o, identityService, users := newTestOrchestrator(t)
	ctx := context.Background()

	registered, err := identityService.Register(ctx, identity.RegisterParams{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)

	signed, err := o.Login(ctx, "carol", "secret123")
	require.NoError(t, err)

	// Disable after issuance
	stored := users.users[registered.ID]
	stored.Enabled = false
	_, err = o.ResolvePrincipal(ctx, signed)
	assert.ErrorIs(t, err, identity.ErrAccountNotValid)

	// Lock after issuance
	stored.Enabled = true
	now := time.Now()
	stored.Status = identity.StatusLocked
	stored.LockedAt = &now
	_, err = o.ResolvePrincipal(ctx, signed)
	assert.ErrorIs(t, err, identity.ErrAccountNotValid)

	// Garbage tokens are rejected before any lookup
	_, err = o.ResolvePrincipal(ctx, "not.a.token")
	assert.ErrorIs(t, err, token.ErrTokenMalformed)
}

// TestPurpose: Validates that token resolution honors the configured lockout window rather than the default.
// Scope: Unit Test
// Security: Lockout consistency between login and token resolution
// Expected: With a 2-hour window, a lock stamped 1 hour ago still invalidates the token; once the window has passed, the token resolves.
// Test Case ID: AUT-04
func TestAuth_Orchestrator_ResolvePrincipal_ConfiguredWindow(t *testing.T) {
	users := newMemUserRepo()
	roles := newMemRoleRepo()
	hasher := identity.NewPasswordHasher(1024, 1, 1, 16, 32)
	auditLogger := audit.NewSlogLogger()
	identityService := identity.NewService(users, roles, hasher, auditLogger, 5, 2*time.Hour)

	secret := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{'k'}, 32))
	tokenService, err := token.New(secret, 10*time.Hour)
	require.NoError(t, err)

	o := NewOrchestrator(identityService, tokenService, auditLogger)
	ctx := context.Background()

	hash, err := hasher.Hash("secret123")
	require.NoError(t, err)
	lockedAt := time.Now().Add(-time.Hour)
	saved, err := users.Save(ctx, &identity.User{
		Username:            "ivan",
		Email:               "ivan@example.com",
		PasswordHash:        hash,
		Status:              identity.StatusActive,
		Enabled:             true,
		FailedLoginAttempts: 3,
		LockedAt:            &lockedAt,
	})
	require.NoError(t, err)

	signed, err := tokenService.Issue("ivan")
	require.NoError(t, err)

	// One hour into a two-hour window: still locked
	_, err = o.ResolvePrincipal(ctx, signed)
	assert.ErrorIs(t, err, identity.ErrAccountNotValid)

	// Window elapsed: the token resolves again
	expired := time.Now().Add(-3 * time.Hour)
	users.users[saved.ID].LockedAt = &expired
	principal, err := o.ResolvePrincipal(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "ivan", principal.Username)
}

// TestPurpose: Validates permission-based authorization against the principal's effective permission set.
// Scope: Unit Test
// Security: Authorization decisions
// Expected: Allowed only when an active role carries the permission; nil principal always denied.
// Test Case ID: AUT-03
func TestAuth_Orchestrator_Authorize(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	principal := &Principal{
		Username: "carol",
		Roles: []authz.Role{
			{Name: authz.RoleUser, Active: true, Permissions: authz.UserPermissions},
			{Name: authz.RoleAdmin, Active: false, Permissions: authz.AdminPermissions},
		},
	}

	assert.True(t, o.Authorize(principal, authz.PermProductRead))
	assert.False(t, o.Authorize(principal, authz.PermSystemManage), "inactive role must not grant")
	assert.False(t, o.Authorize(nil, authz.PermProductRead))
}
