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

package token

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"
)

func testSecret(fill byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{fill}, 32))
}

// TestPurpose: Validates token issuance and validation round-trip, subject binding and lifetime.
// Scope: Unit Test
// Security: Token integrity
// Expected: Issued token validates with the original subject and the configured expiry; subject binding rejects a different username.
// Test Case ID: TOK-01
func TestToken_Service_IssueValidate(t *testing.T) {
	s, err := New(testSecret('k'), 10*time.Hour)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	signed, err := s.Issue("bob")
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	claims, err := s.Validate(signed)
	if err != nil {
		t.Fatalf("failed to validate: %v", err)
	}
	if claims.Subject != "bob" {
		t.Errorf("expected subject bob, got %s", claims.Subject)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != 10*time.Hour {
		t.Errorf("expected 10h lifetime, got %v", got)
	}

	if !s.IsValidFor(signed, "bob") {
		t.Error("expected token to be valid for bob")
	}
	if s.IsValidFor(signed, "carol") {
		t.Error("bob's token must not be valid for carol")
	}
}

// TestPurpose: Validates that expired tokens are reported distinctly from malformed ones.
// Scope: Unit Test
// Security: Token lifetime enforcement
// Expected: ErrTokenExpired for a token past its expiry.
// Test Case ID: TOK-02
func TestToken_Service_Expired(t *testing.T) {
	s, err := New(testSecret('k'), time.Nanosecond)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	signed, err := s.Issue("bob")
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	time.Sleep(time.Millisecond)
	if _, err := s.Validate(signed); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
	if s.IsValidFor(signed, "bob") {
		t.Error("expired token must not be valid")
	}
}

// TestPurpose: Validates rejection of tampered and foreign-key tokens.
// Scope: Unit Test
// Security: Signature verification
// Expected: ErrTokenMalformed for a modified signature, a token signed with a different key, and garbage input.
// Test Case ID: TOK-03
func TestToken_Service_Malformed(t *testing.T) {
	s, err := New(testSecret('k'), 10*time.Hour)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	signed, err := s.Issue("bob")
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	// Flip the last signature character
	tampered := []byte(signed)
	if tampered[len(tampered)-1] == 'A' {
		tampered[len(tampered)-1] = 'B'
	} else {
		tampered[len(tampered)-1] = 'A'
	}
	if _, err := s.Validate(string(tampered)); err != ErrTokenMalformed {
		t.Errorf("expected ErrTokenMalformed for tampered signature, got %v", err)
	}

	other, err := New(testSecret('x'), 10*time.Hour)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	foreign, _ := other.Issue("bob")
	if _, err := s.Validate(foreign); err != ErrTokenMalformed {
		t.Errorf("expected ErrTokenMalformed for foreign key, got %v", err)
	}

	if _, err := s.Validate("not.a.token"); err != ErrTokenMalformed {
		t.Errorf("expected ErrTokenMalformed for garbage, got %v", err)
	}
}

// TestPurpose: Validates key material requirements at construction.
// Scope: Unit Test
// Security: Key strength enforcement
// Expected: Errors for non-base64 secrets and for keys shorter than 32 bytes.
// Test Case ID: TOK-04
func TestToken_Service_New(t *testing.T) {
	if _, err := New("not base64!!", 10*time.Hour); err == nil {
		t.Error("expected error for invalid base64 secret")
	}
	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if _, err := New(short, 10*time.Hour); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := New(testSecret('k'), 0); err != nil {
		t.Errorf("expected default lifetime for zero, got err %v", err)
	}
}
