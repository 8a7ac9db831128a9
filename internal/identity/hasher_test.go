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
	"strings"
	"testing"
)

// TestPurpose: Validates Argon2id password hashing round-trip and salt uniqueness.
// Scope: Unit Test
// Security: Credential storage
// Expected: Correct password verifies, wrong password does not, two hashes of the same password differ.
// Test Case ID: IDN-06
func TestIdentity_PasswordHasher(t *testing.T) {
	hasher := NewPasswordHasher(1024, 1, 1, 16, 32)

	encoded, err := hasher.Hash("secret123")
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Errorf("unexpected hash format: %s", encoded)
	}

	ok, err := hasher.Verify("secret123", encoded)
	if err != nil || !ok {
		t.Errorf("expected correct password to verify, got ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify("wrong-password", encoded)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if ok {
		t.Error("wrong password must not verify")
	}

	again, err := hasher.Hash("secret123")
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	if again == encoded {
		t.Error("expected distinct salts to produce distinct hashes")
	}
}

// TestPurpose: Validates rejection of malformed stored hashes.
// Scope: Unit Test
// Expected: Error for garbage input and for an unknown algorithm tag.
// Test Case ID: IDN-07
func TestIdentity_PasswordHasher_MalformedHash(t *testing.T) {
	hasher := NewPasswordHasher(1024, 1, 1, 16, 32)

	if _, err := hasher.Verify("x", "not-a-hash"); err == nil {
		t.Error("expected error for garbage hash")
	}
	if _, err := hasher.Verify("x", "$bcrypt$v=19$m=1,t=1,p=1$AAAA$BBBB"); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}
