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
	"time"

	"github.com/authgate/authgate/internal/authz"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("username or email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAccountNotValid    = errors.New("account is no longer valid")
	ErrInvalidUsername    = errors.New("username must be between 3 and 50 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
)

// AccountStatus represents the lifecycle state of an account
type AccountStatus string

const (
	StatusActive   AccountStatus = "ACTIVE"
	StatusInactive AccountStatus = "INACTIVE"
	StatusLocked   AccountStatus = "LOCKED"
	StatusPending  AccountStatus = "PENDING"
)

// Lockout defaults. The window is the interval during which a locked
// account stays locked after lockedAt.
const (
	DefaultMaxFailedLogins = 5
	DefaultLockoutWindow   = 30 * time.Minute
)

// User represents a user identity in the system.
//
// Invariants: Status == LOCKED implies LockedAt is set;
// FailedLoginAttempts == 0 implies LockedAt is unset.
type User struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Status              AccountStatus
	Enabled             bool
	FailedLoginAttempts int
	LockedAt            *time.Time
	LastLoginAt         *time.Time
	Roles               []authz.Role
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasRole reports whether the user carries a role with the given name.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RegisterFailedLogin applies the lockout failure transition: the counter
// is incremented and, once it reaches threshold, the account transitions
// to LOCKED with LockedAt stamped. Only the credential verifier may call
// this.
func (u *User) RegisterFailedLogin(now time.Time, threshold int) {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		u.Status = StatusLocked
		locked := now
		u.LockedAt = &locked
	}
}

// ResetFailedLogins applies the success transition: the counter returns
// to zero and LockedAt is cleared. The status is left untouched; a LOCKED
// account never reaches the success path.
func (u *User) ResetFailedLogins() {
	u.FailedLoginAttempts = 0
	u.LockedAt = nil
}

// Unlock is the manual reset: counter to zero, LockedAt cleared, and a
// LOCKED status demoted to ACTIVE.
func (u *User) Unlock() {
	u.FailedLoginAttempts = 0
	u.LockedAt = nil
	if u.Status == StatusLocked {
		u.Status = StatusActive
	}
}

// IsLocked reports whether the account is locked: either the status says
// so, or LockedAt is within the lockout window of now. The window is
// reported only; no login path flips a LOCKED status back to ACTIVE (see
// Unlock).
func (u *User) IsLocked(now time.Time, window time.Duration) bool {
	if u.Status == StatusLocked {
		return true
	}
	return u.LockedAt != nil && now.Before(u.LockedAt.Add(window))
}

// UserRepository defines the interface for user persistence.
//
// RecordFailedLogin and ResetFailedLogins must be applied as a single
// atomic read-modify-write at the store, so that concurrent attempts for
// the same user can neither skip nor double-count the lockout threshold.
type UserRepository interface {
	// FindByUsername retrieves a user with roles eagerly loaded
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByID retrieves a user with roles eagerly loaded
	FindByID(ctx context.Context, id string) (*User, error)

	// List retrieves all users
	List(ctx context.Context) ([]*User, error)

	// Save upserts a user and its role assignments, returning the
	// persisted form
	Save(ctx context.Context, user *User) (*User, error)

	// ExistsByUsername checks whether a username is taken
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// ExistsByEmail checks whether an email is taken
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// RecordFailedLogin atomically increments the failed-login counter
	// and locks the account when the counter reaches threshold. Returns
	// the updated user.
	RecordFailedLogin(ctx context.Context, userID string, threshold int, now time.Time) (*User, error)

	// ResetFailedLogins atomically resets the failed-login counter and
	// clears the lock timestamp. On the success path (demote false) the
	// last login is stamped; with demote true a LOCKED status is
	// demoted to ACTIVE (manual unlock).
	ResetFailedLogins(ctx context.Context, userID string, now time.Time, demote bool) error
}
