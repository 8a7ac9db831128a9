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

package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/authgate/authgate/internal/audit"
	"github.com/authgate/authgate/internal/authz"
	"github.com/authgate/authgate/internal/id"
)

// MockUserRepository is a simple in-memory implementation of UserRepository.
// findErr, when set, is returned by every lookup to simulate a store
// failure.
type MockUserRepository struct {
	mu      sync.Mutex
	users   map[string]*User
	findErr error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*User)}
}

func cloneUser(u *User) *User {
	c := *u
	if u.LockedAt != nil {
		t := *u.LockedAt
		c.LockedAt = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	c.Roles = append([]authz.Role(nil), u.Roles...)
	return &c
}

func (m *MockUserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) FindByID(ctx context.Context, userID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *MockUserRepository) List(ctx context.Context) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.users {
		out = append(out, cloneUser(u))
	}
	return out, nil
}

func (m *MockUserRepository) Save(ctx context.Context, user *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = id.New()
	}
	m.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockUserRepository) RecordFailedLogin(ctx context.Context, userID string, threshold int, now time.Time) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.RegisterFailedLogin(now, threshold)
	return cloneUser(u), nil
}

func (m *MockUserRepository) ResetFailedLogins(ctx context.Context, userID string, now time.Time, demote bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if demote {
		u.Unlock()
	} else {
		u.ResetFailedLogins()
		u.LastLoginAt = &now
	}
	return nil
}

// MockRoleRepository is a simple in-memory implementation of authz.RoleRepository
type MockRoleRepository struct {
	roles map[string]*authz.Role
}

func NewMockRoleRepository() *MockRoleRepository {
	return &MockRoleRepository{roles: make(map[string]*authz.Role)}
}

func (m *MockRoleRepository) FindByName(ctx context.Context, name string) (*authz.Role, error) {
	r, ok := m.roles[name]
	if !ok {
		return nil, authz.ErrRoleNotFound
	}
	c := *r
	c.Permissions = append([]string(nil), r.Permissions...)
	return &c, nil
}

func (m *MockRoleRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	_, ok := m.roles[name]
	return ok, nil
}

func (m *MockRoleRepository) Save(ctx context.Context, role *authz.Role) (*authz.Role, error) {
	if role.ID == "" {
		role.ID = id.New()
	}
	c := *role
	m.roles[role.Name] = &c
	return role, nil
}

func newTestService(t *testing.T) (*Service, *MockUserRepository, *MockRoleRepository) {
	t.Helper()
	users := NewMockUserRepository()
	roles := NewMockRoleRepository()
	roles.Save(context.Background(), &authz.Role{
		Name:        authz.RoleUser,
		Active:      true,
		Permissions: authz.UserPermissions,
	})
	hasher := NewPasswordHasher(1024, 1, 1, 16, 32)
	s := NewService(users, roles, hasher, audit.NewSlogLogger(), 5, 30*time.Minute)
	return s, users, roles
}

// TestPurpose: Validates the credential verification flow, including success, failure, and account lockout after repeated failed attempts.
// Scope: Unit Test
// Security: Authentication mechanisms and Brute-force protection (lockout)
// Expected: Success for correct credentials, ErrInvalidCredentials for wrong password, LOCKED after the fifth consecutive failure, ErrAccountLocked thereafter even with correct credentials.
// Test Case ID: IDN-01
func TestIdentity_Service_Verify_Lockout(t *testing.T) {
	s, users, _ := newTestService(t)
	ctx := context.Background()

	registered, err := s.Register(ctx, RegisterParams{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	// Fresh accounts are pending but enabled, so login is possible.
	if registered.Status != StatusPending || !registered.Enabled {
		t.Fatalf("expected PENDING enabled account, got %s enabled=%v", registered.Status, registered.Enabled)
	}

	// Success path
	verified, err := s.Verify(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("expected success, got err: %v", err)
	}
	if verified.LastLoginAt == nil {
		t.Error("expected last login to be stamped on success")
	}

	// Four wrong attempts: counter grows, status untouched
	for i := 1; i <= 4; i++ {
		if _, err := s.Verify(ctx, "alice", "wrong"); err != ErrInvalidCredentials {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	stored, _ := users.FindByID(ctx, registered.ID)
	if stored.FailedLoginAttempts != 4 {
		t.Errorf("expected 4 failed attempts, got %d", stored.FailedLoginAttempts)
	}
	if stored.Status == StatusLocked {
		t.Error("account must not lock before the threshold")
	}

	// Fifth wrong attempt crosses the threshold
	if _, err := s.Verify(ctx, "alice", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials on fifth attempt, got %v", err)
	}
	stored, _ = users.FindByID(ctx, registered.ID)
	if stored.Status != StatusLocked {
		t.Errorf("expected LOCKED status, got %s", stored.Status)
	}
	if stored.LockedAt == nil {
		t.Error("expected LockedAt to be stamped on lockout")
	}

	// Correct credentials no longer help
	if _, err := s.Verify(ctx, "alice", "correct-horse"); err != ErrAccountLocked {
		t.Errorf("expected ErrAccountLocked, got %v", err)
	}

	// Manual unlock restores access
	if err := s.Unlock(ctx, "alice"); err != nil {
		t.Fatalf("failed to unlock: %v", err)
	}
	stored, _ = users.FindByID(ctx, registered.ID)
	if stored.Status != StatusActive || stored.FailedLoginAttempts != 0 {
		t.Errorf("expected ACTIVE with zero attempts after unlock, got %s/%d",
			stored.Status, stored.FailedLoginAttempts)
	}
	if _, err := s.Verify(ctx, "alice", "correct-horse"); err != nil {
		t.Errorf("expected success after unlock, got %v", err)
	}
}

// TestPurpose: Validates that a successful login resets an accumulated failure counter before the threshold is reached.
// Scope: Unit Test
// Security: Brute-force protection (lockout counter hygiene)
// Expected: Counter returns to zero after a successful verification.
// Test Case ID: IDN-02
func TestIdentity_Service_Verify_SuccessResetsCounter(t *testing.T) {
	s, users, _ := newTestService(t)
	ctx := context.Background()

	registered, err := s.Register(ctx, RegisterParams{
		Username: "erin",
		Email:    "erin@example.com",
		Password: "hunter22",
	})
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	s.Verify(ctx, "erin", "wrong")
	s.Verify(ctx, "erin", "wrong")
	s.Verify(ctx, "erin", "wrong")

	if _, err := s.Verify(ctx, "erin", "hunter22"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	stored, _ := users.FindByID(ctx, registered.ID)
	if stored.FailedLoginAttempts != 0 {
		t.Errorf("expected counter reset to 0, got %d", stored.FailedLoginAttempts)
	}
}

// TestPurpose: Validates that unknown usernames and disabled accounts fail indistinguishably from a wrong password.
// Scope: Unit Test
// Security: Username enumeration resistance
// Expected: ErrInvalidCredentials for unknown user and for disabled account.
// Test Case ID: IDN-03
func TestIdentity_Service_Verify_Indistinguishable(t *testing.T) {
	s, users, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.Verify(ctx, "nobody", "whatever"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	registered, err := s.Register(ctx, RegisterParams{
		Username: "frank",
		Email:    "frank@example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	stored, _ := users.FindByID(ctx, registered.ID)
	stored.Enabled = false
	users.Save(ctx, stored)

	if _, err := s.Verify(ctx, "frank", "secret123"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for disabled account, got %v", err)
	}
}

// TestPurpose: Validates registration input checks and duplicate detection for username and email.
// Scope: Unit Test
// Security: Data integrity and unique constraint enforcement
// Expected: Validation errors for malformed input; ErrDuplicateUser for a taken username or email.
// Test Case ID: IDN-04
func TestIdentity_Service_Register(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, RegisterParams{Username: "ab", Email: "a@b.com", Password: "secret123"}); err != ErrInvalidUsername {
		t.Errorf("expected ErrInvalidUsername, got %v", err)
	}
	if _, err := s.Register(ctx, RegisterParams{Username: "dave", Email: "not-an-email", Password: "secret123"}); err != ErrInvalidEmail {
		t.Errorf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := s.Register(ctx, RegisterParams{Username: "dave", Email: "dave@example.com", Password: "short"}); err != ErrWeakPassword {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}

	user, err := s.Register(ctx, RegisterParams{Username: "dave", Email: "dave@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if !user.HasRole(authz.RoleUser) {
		t.Error("expected default USER role on registration")
	}

	if _, err := s.Register(ctx, RegisterParams{Username: "dave", Email: "other@example.com", Password: "secret123"}); err != ErrDuplicateUser {
		t.Errorf("expected ErrDuplicateUser for taken username, got %v", err)
	}
	if _, err := s.Register(ctx, RegisterParams{Username: "dave2", Email: "dave@example.com", Password: "secret123"}); err != ErrDuplicateUser {
		t.Errorf("expected ErrDuplicateUser for taken email, got %v", err)
	}
}

// TestPurpose: Validates that a store failure during verification is surfaced as an internal error, not masked as bad credentials.
// Scope: Unit Test
// Security: Failure-path integrity (a database outage must not look like a wrong password)
// Expected: The store error is wrapped and returned; ErrInvalidCredentials is reserved for the enumeration-resistant path.
// Test Case ID: IDN-08
func TestIdentity_Service_Verify_StoreFailure(t *testing.T) {
	s, users, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, RegisterParams{
		Username: "henry",
		Email:    "henry@example.com",
		Password: "secret123",
	}); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	storeErr := errors.New("connection reset")
	users.findErr = storeErr

	_, err := s.Verify(ctx, "henry", "secret123")
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("store failure must not be reported as invalid credentials")
	}
	if !errors.Is(err, storeErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

// TestPurpose: Validates that registration survives a missing default role instead of failing the signup.
// Scope: Unit Test
// Expected: User is created without roles when the USER role does not exist.
// Test Case ID: IDN-05
func TestIdentity_Service_Register_NoDefaultRole(t *testing.T) {
	users := NewMockUserRepository()
	roles := NewMockRoleRepository()
	hasher := NewPasswordHasher(1024, 1, 1, 16, 32)
	s := NewService(users, roles, hasher, audit.NewSlogLogger(), 5, 30*time.Minute)

	user, err := s.Register(context.Background(), RegisterParams{
		Username: "grace",
		Email:    "grace@example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if len(user.Roles) != 0 {
		t.Errorf("expected no roles, got %d", len(user.Roles))
	}
}
