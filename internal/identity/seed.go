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
	"fmt"
	"log/slog"
	"os"

	"github.com/authgate/authgate/internal/audit"
	"github.com/authgate/authgate/internal/authz"
	"github.com/authgate/authgate/internal/id"
)

const (
	EnvSeedAdminPassword = "AG_SEED_ADMIN_PASSWORD"
	EnvSeedUserPassword  = "AG_SEED_USER_PASSWORD"
)

// Seeder provisions the default roles and users at startup
type Seeder struct {
	users       UserRepository
	roles       authz.RoleRepository
	hasher      *PasswordHasher
	auditLogger audit.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(
	users UserRepository,
	roles authz.RoleRepository,
	hasher *PasswordHasher,
	auditLogger audit.Logger,
) *Seeder {
	return &Seeder{
		users:       users,
		roles:       roles,
		hasher:      hasher,
		auditLogger: auditLogger,
	}
}

// Seed idempotently creates the default roles and the admin and test
// users. Existing roles and users are left untouched.
func (s *Seeder) Seed(ctx context.Context) error {
	slog.InfoContext(ctx, "seeding default roles and users")

	if err := s.seedRole(ctx, authz.RoleAdmin, "System administrator", authz.AdminPermissions); err != nil {
		return err
	}
	if err := s.seedRole(ctx, authz.RoleUser, "Standard user", authz.UserPermissions); err != nil {
		return err
	}
	if err := s.seedRole(ctx, authz.RoleModerator, "Moderator", authz.ModeratorPermissions); err != nil {
		return err
	}

	adminPassword := os.Getenv(EnvSeedAdminPassword)
	if adminPassword == "" {
		adminPassword = "admin123"
	}
	if err := s.seedUser(ctx, "admin", "admin@example.com", adminPassword, "Admin", "System", authz.RoleAdmin); err != nil {
		return err
	}

	userPassword := os.Getenv(EnvSeedUserPassword)
	if userPassword == "" {
		userPassword = "user123"
	}
	if err := s.seedUser(ctx, "user", "user@example.com", userPassword, "Test", "User", authz.RoleUser); err != nil {
		return err
	}

	slog.InfoContext(ctx, "seeding complete")
	return nil
}

func (s *Seeder) seedRole(ctx context.Context, name, description string, permissions []string) error {
	exists, err := s.roles.ExistsByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check role %s: %w", name, err)
	}
	if exists {
		return nil
	}

	role := &authz.Role{
		Name:        name,
		Description: description,
		Active:      true,
		Permissions: append([]string(nil), permissions...),
	}
	if _, err := s.roles.Save(ctx, role); err != nil {
		return fmt.Errorf("failed to seed role %s: %w", name, err)
	}

	slog.InfoContext(ctx, "seeded role", slog.String("role", name))
	return nil
}

func (s *Seeder) seedUser(ctx context.Context, username, email, password, firstName, lastName, roleName string) error {
	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check user %s: %w", username, err)
	}
	if exists {
		return nil
	}

	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		return fmt.Errorf("seed role %s not found: %w", roleName, err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password for %s: %w", username, err)
	}

	user := &User{
		ID:           id.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		Status:       StatusActive,
		Enabled:      true,
		Roles:        []authz.Role{*role},
	}
	saved, err := s.users.Save(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to seed user %s: %w", username, err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserRegistered,
		ActorID:  audit.ActorSystemSeed,
		Resource: "user",
		Metadata: map[string]any{audit.AttrUsername: saved.Username},
	})

	slog.InfoContext(ctx, "seeded user",
		slog.String("username", username),
		slog.String("role", roleName),
	)
	return nil
}
