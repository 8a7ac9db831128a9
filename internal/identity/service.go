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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/authgate/authgate/internal/audit"
	"github.com/authgate/authgate/internal/authz"
	"github.com/authgate/authgate/internal/id"
)

// Service provides registration and credential verification. It is the
// only component that drives the lockout state machine.
type Service struct {
	repo          UserRepository
	roles         authz.RoleRepository
	hasher        *PasswordHasher
	auditLogger   audit.Logger
	maxAttempts   int
	lockoutWindow time.Duration
}

// NewService creates a new identity service
func NewService(
	repo UserRepository,
	roles authz.RoleRepository,
	hasher *PasswordHasher,
	auditLogger audit.Logger,
	maxAttempts int,
	lockoutWindow time.Duration,
) *Service {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxFailedLogins
	}
	if lockoutWindow <= 0 {
		lockoutWindow = DefaultLockoutWindow
	}
	return &Service{
		repo:          repo,
		roles:         roles,
		hasher:        hasher,
		auditLogger:   auditLogger,
		maxAttempts:   maxAttempts,
		lockoutWindow: lockoutWindow,
	}
}

// RegisterParams carries the data for a new registration
type RegisterParams struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a new user: validates, hashes the password, enables
// the account and assigns the default USER role. The account starts in
// PENDING status.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*User, error) {
	if l := len(params.Username); l < 3 || l > 50 {
		return nil, ErrInvalidUsername
	}
	if !isValidEmail(params.Email) {
		return nil, ErrInvalidEmail
	}
	if len(params.Password) < 6 {
		return nil, ErrWeakPassword
	}

	taken, err := s.repo.ExistsByUsername(ctx, params.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return nil, ErrDuplicateUser
	}

	taken, err = s.repo.ExistsByEmail(ctx, params.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return nil, ErrDuplicateUser
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           id.New(),
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: passwordHash,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Status:       StatusPending,
		Enabled:      true,
	}

	if role, err := s.roles.FindByName(ctx, authz.RoleUser); err == nil {
		user.Roles = []authz.Role{*role}
	} else {
		slog.WarnContext(ctx, "default role missing, registering without roles",
			slog.String("role", authz.RoleUser))
	}

	saved, err := s.repo.Save(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserRegistered,
		ActorID:  saved.ID,
		Resource: "user",
		Metadata: map[string]any{audit.AttrUsername: saved.Username, audit.AttrEmail: saved.Email},
	})

	return saved, nil
}

// Verify checks a (username, password) pair and drives the lockout state
// machine. Unknown user, disabled account and wrong password all report
// ErrInvalidCredentials so callers cannot enumerate usernames. A locked
// account reports ErrAccountLocked before any hash comparison.
//
// Every call that reaches the password check mutates and persists the
// lockout counters; Verify must not be called speculatively.
func (s *Service) Verify(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "user_not_found"},
		})
		return nil, ErrInvalidCredentials
	}

	if !user.Enabled {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "account_disabled"},
		})
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if user.IsLocked(now, s.lockoutWindow) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "account_locked"},
		})
		return nil, ErrAccountLocked
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		updated, uerr := s.repo.RecordFailedLogin(ctx, user.ID, s.maxAttempts, now)
		if uerr != nil {
			slog.ErrorContext(ctx, "failed to persist lockout counters",
				slog.String("user_id", user.ID), slog.Any("error", uerr))
		} else if updated.Status == StatusLocked && user.Status != StatusLocked {
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeUserLocked,
				ActorID:  user.ID,
				Resource: "login",
				Metadata: map[string]any{audit.AttrAttempts: updated.FailedLoginAttempts},
			})
		}

		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "invalid_password"},
		})

		return nil, ErrInvalidCredentials
	}

	if err := s.repo.ResetFailedLogins(ctx, user.ID, now, false); err != nil {
		return nil, fmt.Errorf("failed to reset lockout counters: %w", err)
	}
	user.ResetFailedLogins()
	user.LastLoginAt = &now

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  user.ID,
		Resource: "login",
	})

	return user, nil
}

// Unlock manually resets the lockout state: counter to zero, lock
// timestamp cleared, LOCKED demoted to ACTIVE.
func (s *Service) Unlock(ctx context.Context, username string) error {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return ErrUserNotFound
	}

	if err := s.repo.ResetFailedLogins(ctx, user.ID, time.Now(), true); err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserUnlocked,
		ActorID:  user.ID,
		Resource: "user",
		Metadata: map[string]any{audit.AttrUsername: username},
	})

	return nil
}

// IsAccountValid reports whether the account is in good standing: enabled
// and not locked under the configured lockout window. Token resolution
// uses this so it agrees with Verify on what counts as locked.
func (s *Service) IsAccountValid(user *User, now time.Time) bool {
	return user.Enabled && !user.IsLocked(now, s.lockoutWindow)
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetByUsername retrieves a user by username
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ListUsers retrieves all users
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 255 {
		return false
	}
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1
}
