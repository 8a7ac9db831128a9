package authz

import (
	"context"
	"fmt"

	"github.com/authgate/authgate/internal/audit"
)

// Service provides role and permission administration
type Service struct {
	roles       RoleRepository
	auditLogger audit.Logger
}

// NewService creates a new authorization service
func NewService(roles RoleRepository, auditLogger audit.Logger) *Service {
	return &Service{
		roles:       roles,
		auditLogger: auditLogger,
	}
}

// GetRole retrieves a role by name with its permission set
func (s *Service) GetRole(ctx context.Context, name string) (*Role, error) {
	return s.roles.FindByName(ctx, name)
}

// CreateRole creates a new role. Fails if a role with the same name exists.
func (s *Service) CreateRole(ctx context.Context, name, description string, permissions []string) (*Role, error) {
	if name == "" || len(name) > MaxRoleNameLength {
		return nil, ErrInvalidRoleName
	}

	exists, err := s.roles.ExistsByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check role existence: %w", err)
	}
	if exists {
		return nil, ErrRoleAlreadyExists
	}

	role := &Role{
		Name:        name,
		Description: description,
		Active:      true,
	}
	for _, p := range permissions {
		role.AddPermission(p)
	}

	saved, err := s.roles.Save(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to save role: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleCreated,
		Resource: saved.Name,
		Metadata: map[string]any{audit.AttrPermissions: saved.Permissions},
	})

	return saved, nil
}

// GrantPermission adds a permission to a role. Granting an already-present
// permission is a no-op.
func (s *Service) GrantPermission(ctx context.Context, roleName, permission string) (*Role, error) {
	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		return nil, err
	}

	if role.HasPermission(permission) {
		return role, nil
	}

	role.AddPermission(permission)
	saved, err := s.roles.Save(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to save role: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePermissionGranted,
		Resource: roleName,
		Metadata: map[string]any{audit.AttrPermission: permission},
	})

	return saved, nil
}

// RevokePermission removes a permission from a role. Revoking an absent
// permission is a no-op.
func (s *Service) RevokePermission(ctx context.Context, roleName, permission string) (*Role, error) {
	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		return nil, err
	}

	if !role.HasPermission(permission) {
		return role, nil
	}

	role.RemovePermission(permission)
	saved, err := s.roles.Save(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to save role: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePermissionRevoked,
		Resource: roleName,
		Metadata: map[string]any{audit.AttrPermission: permission},
	})

	return saved, nil
}

// DeactivateRole soft-deactivates a role. Roles are never deleted in
// normal operation; inactive roles stop contributing permissions.
func (s *Service) DeactivateRole(ctx context.Context, roleName string) error {
	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		return err
	}

	if !role.Active {
		return nil
	}

	role.Active = false
	if _, err := s.roles.Save(ctx, role); err != nil {
		return fmt.Errorf("failed to save role: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleDeactivated,
		Resource: roleName,
	})

	return nil
}
