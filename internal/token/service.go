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

// Package token issues and validates signed, time-bounded bearer tokens.
// Tokens are self-contained HS256 JWTs; there is no server-side
// revocation, logout is a client-side discard.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Domain errors
var (
	ErrTokenMalformed = errors.New("token is malformed or has an invalid signature")
	ErrTokenExpired   = errors.New("token has expired")
)

// DefaultLifetime is the fixed token lifetime from issuance.
const DefaultLifetime = 10 * time.Hour

// Claims is the structured payload carried inside a validated token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Service signs and verifies tokens with a process-wide symmetric key.
// The key is derived once at construction and never mutated; Issue and
// Validate are safe for unlimited concurrent use.
type Service struct {
	key      []byte
	lifetime time.Duration
}

// New creates a token service from a base64-encoded secret. The secret
// must decode to at least 32 bytes of key material for HS256.
func New(secretBase64 string, lifetime time.Duration) (*Service, error) {
	key, err := base64.StdEncoding.DecodeString(secretBase64)
	if err != nil {
		return nil, fmt.Errorf("token secret is not valid base64: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("token secret must decode to at least 32 bytes, got %d", len(key))
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Service{key: key, lifetime: lifetime}, nil
}

// Issue builds a signed token for the given subject, valid from now for
// the configured lifetime.
func (s *Service) Issue(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies the signature and expiry of a token string. A token
// that cannot be parsed or fails the signature check reports
// ErrTokenMalformed; a well-signed token past its expiry reports
// ErrTokenExpired.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	var registered jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &registered,
		func(t *jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims := &Claims{Subject: registered.Subject}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}

// IsValidFor validates the token and additionally requires its subject
// to match the expected username, binding a presented token to the
// principal the caller believes is authenticated.
func (s *Service) IsValidFor(tokenString, expectedUsername string) bool {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return false
	}
	return claims.Subject == expectedUsername
}
