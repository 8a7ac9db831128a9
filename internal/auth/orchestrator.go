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

// Package auth composes the credential verifier and the token service:
// credentials in, token out; token in, authenticated principal out.
package auth

import (
	"context"
	"time"

	"github.com/authgate/authgate/internal/audit"
	"github.com/authgate/authgate/internal/authz"
	"github.com/authgate/authgate/internal/identity"
	"github.com/authgate/authgate/internal/token"
)

// Principal is the authenticated identity used for authorization
// decisions: the user plus its resolved roles.
type Principal struct {
	UserID   string
	Username string
	Roles    []authz.Role
}

// Permissions returns the effective permission set: the union across all
// active roles.
func (p *Principal) Permissions() map[string]struct{} {
	return authz.PermissionUnion(p.Roles)
}

// Orchestrator turns credentials into tokens and tokens into principals.
type Orchestrator struct {
	identity    *identity.Service
	tokens      *token.Service
	auditLogger audit.Logger
}

// NewOrchestrator creates a new authentication orchestrator
func NewOrchestrator(identitySvc *identity.Service, tokens *token.Service, auditLogger audit.Logger) *Orchestrator {
	return &Orchestrator{
		identity:    identitySvc,
		tokens:      tokens,
		auditLogger: auditLogger,
	}
}

// Login verifies the credentials and, on success, issues a token bound
// to the user. Verification failures propagate unchanged and no token is
// issued.
func (o *Orchestrator) Login(ctx context.Context, username, password string) (string, error) {
	user, err := o.identity.Verify(ctx, username, password)
	if err != nil {
		return "", err
	}

	signed, err := o.tokens.Issue(user.Username)
	if err != nil {
		return "", err
	}

	o.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  user.ID,
		Resource: "token",
		Metadata: map[string]any{audit.AttrSubject: user.Username},
	})

	return signed, nil
}

// ResolvePrincipal validates a presented token and re-loads the subject
// through the store. Token validity alone does not guarantee current
// account standing: an account disabled or locked after issuance fails
// with identity.ErrAccountNotValid.
func (o *Orchestrator) ResolvePrincipal(ctx context.Context, tokenString string) (*Principal, error) {
	claims, err := o.tokens.Validate(tokenString)
	if err != nil {
		o.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeTokenRejected,
			Resource: "token",
			Metadata: map[string]any{audit.AttrReason: err.Error()},
		})
		return nil, err
	}

	user, err := o.identity.GetByUsername(ctx, claims.Subject)
	if err != nil {
		return nil, identity.ErrAccountNotValid
	}
	if !o.identity.IsAccountValid(user, time.Now()) {
		return nil, identity.ErrAccountNotValid
	}

	return &Principal{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    user.Roles,
	}, nil
}

// Authorize checks whether the principal's effective permission set
// contains the required permission.
func (o *Orchestrator) Authorize(principal *Principal, requiredPermission string) bool {
	if principal == nil {
		return false
	}
	_, ok := principal.Permissions()[requiredPermission]
	return ok
}
