// Copyright 2026 The OpenTrusty Authors
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

//go:build integration
// +build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/opentrusty/opentrusty/internal/identity"
	"github.com/opentrusty/opentrusty/internal/oauth2"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	cfg := Config{
		Host:         "localhost",
		Port:         "5432",
		User:         "opentrusty",
		Password:     "opentrusty_dev_password",
		Database:     "opentrusty",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 5,
	}

	db, err := New(context.Background(), cfg)
	if err != nil {
		t.Skipf("skipping integration test: failed to connect to database: %v", err)
	}
	return db
}

// TestAuthorizationCodeRepository_MarkAsUsed_IsSingleUse exercises the
// compare-and-set guarantee directly against Postgres: of two concurrent
// redemption attempts of the same code, exactly one must succeed.
func TestAuthorizationCodeRepository_MarkAsUsed_IsSingleUse(t *testing.T) {
	db := testDB(t)
	defer db.Close()

	repo := NewAuthorizationCodeRepository(db)
	code := &oauth2.AuthorizationCode{
		Code:                uuid.NewString(),
		UserID:              uuid.NewString(),
		ClientID:            uuid.NewString(),
		RedirectURI:         "https://client.example.com/callback",
		Scope:               "profile",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		CreatedAt:           time.Now(),
		ExpiresAt:           time.Now().Add(time.Minute),
	}

	if err := repo.Create(code); err != nil {
		t.Fatalf("creating code: %v", err)
	}
	defer repo.Delete(code.Code)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- repo.MarkAsUsed(code.Code) }()
	}

	var successes, alreadyUsed int
	for i := 0; i < 2; i++ {
		switch err := <-results; err {
		case nil:
			successes++
		case oauth2.ErrCodeAlreadyUsed:
			alreadyUsed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if successes != 1 || alreadyUsed != 1 {
		t.Fatalf("expected exactly one success and one already-used, got %d successes, %d already-used", successes, alreadyUsed)
	}
}

// TestUserRepository_GetByEmail_RoundTrips confirms the user repository's
// basic persistence round trip against a real database.
func TestUserRepository_GetByEmail_RoundTrips(t *testing.T) {
	db := testDB(t)
	defer db.Close()

	repo := NewUserRepository(db)
	user := &identity.User{
		ID:       uuid.NewString(),
		Email:    uuid.NewString() + "@example.com",
		Username: "integration-" + uuid.NewString()[:8],
		Roles:    []string{identity.DefaultRole},
		IsActive: true,
	}

	if err := repo.Create(user); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	defer repo.Delete(user.ID)

	found, err := repo.GetByEmail(user.Email)
	if err != nil {
		t.Fatalf("getting user by email: %v", err)
	}
	if found.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, found.ID)
	}
}
