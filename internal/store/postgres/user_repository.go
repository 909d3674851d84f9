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

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/opentrusty/internal/identity"
)

// UserRepository implements identity.UserRepository.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user identity.
func (r *UserRepository) Create(user *identity.User) error {
	ctx := context.Background()
	now := time.Now()

	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return fmt.Errorf("marshaling roles: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, username, email_verified,
			given_name, family_name, full_name, nickname, picture, locale, timezone,
			roles, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		user.ID, user.Email, user.Username, user.EmailVerified,
		user.Profile.GivenName, user.Profile.FamilyName, user.Profile.FullName,
		user.Profile.Nickname, user.Profile.Picture, user.Profile.Locale, user.Profile.Timezone,
		roles, user.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now

	return nil
}

// AddCredentials adds credentials for a user.
func (r *UserRepository) AddCredentials(credentials *identity.Credentials) error {
	ctx := context.Background()
	now := time.Now()

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO credentials (user_id, password_hash, updated_at)
		VALUES ($1, $2, $3)
	`, credentials.UserID, credentials.PasswordHash, now)
	if err != nil {
		return fmt.Errorf("inserting credentials: %w", err)
	}

	credentials.UpdatedAt = now

	return nil
}

const selectUserColumns = `
	id, email, username, email_verified,
	given_name, family_name, full_name, nickname, picture, locale, timezone,
	roles, is_active, failed_login_attempts, locked_until,
	created_at, updated_at, deleted_at
`

func scanUser(row pgx.Row) (*identity.User, error) {
	var user identity.User
	var rolesJSON []byte
	var lockedUntil, deletedAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.EmailVerified,
		&user.Profile.GivenName, &user.Profile.FamilyName, &user.Profile.FullName,
		&user.Profile.Nickname, &user.Profile.Picture, &user.Profile.Locale, &user.Profile.Timezone,
		&rolesJSON, &user.IsActive, &user.FailedLoginAttempts, &lockedUntil,
		&user.CreatedAt, &user.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(rolesJSON, &user.Roles); err != nil {
		return nil, fmt.Errorf("unmarshaling roles: %w", err)
	}
	if lockedUntil.Valid {
		user.LockedUntil = &lockedUntil.Time
	}
	if deletedAt.Valid {
		user.DeletedAt = &deletedAt.Time
	}

	return &user, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(id string) (*identity.User, error) {
	ctx := context.Background()

	row := r.db.pool.QueryRow(ctx, `
		SELECT `+selectUserColumns+`
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
	`, id)

	user, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(email string) (*identity.User, error) {
	ctx := context.Background()

	row := r.db.pool.QueryRow(ctx, `
		SELECT `+selectUserColumns+`
		FROM users
		WHERE email = $1 AND deleted_at IS NULL
	`, email)

	user, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(username string) (*identity.User, error) {
	ctx := context.Background()

	row := r.db.pool.QueryRow(ctx, `
		SELECT `+selectUserColumns+`
		FROM users
		WHERE username = $1 AND deleted_at IS NULL
	`, username)

	user, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// Update updates user profile and role information.
func (r *UserRepository) Update(user *identity.User) error {
	ctx := context.Background()

	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return fmt.Errorf("marshaling roles: %w", err)
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET
			email = $2,
			username = $3,
			email_verified = $4,
			given_name = $5,
			family_name = $6,
			full_name = $7,
			nickname = $8,
			picture = $9,
			locale = $10,
			timezone = $11,
			roles = $12,
			is_active = $13,
			updated_at = $14
		WHERE id = $1 AND deleted_at IS NULL
	`,
		user.ID, user.Email, user.Username, user.EmailVerified,
		user.Profile.GivenName, user.Profile.FamilyName, user.Profile.FullName,
		user.Profile.Nickname, user.Profile.Picture, user.Profile.Locale, user.Profile.Timezone,
		roles, user.IsActive, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	return nil
}

// UpdateLockout updates a user's failed-attempt counter and lockout expiry.
func (r *UserRepository) UpdateLockout(userID string, failedAttempts int, lockedUntil *time.Time) error {
	_, err := r.db.pool.Exec(context.Background(), `
		UPDATE users
		SET failed_login_attempts = $1, locked_until = $2, updated_at = NOW()
		WHERE id = $3
	`, failedAttempts, lockedUntil, userID)
	if err != nil {
		return fmt.Errorf("updating lockout status: %w", err)
	}
	return nil
}

// Delete soft-deletes a user.
func (r *UserRepository) Delete(id string) error {
	ctx := context.Background()

	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, time.Now())
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	return nil
}

// GetCredentials retrieves user credentials.
func (r *UserRepository) GetCredentials(userID string) (*identity.Credentials, error) {
	ctx := context.Background()

	var creds identity.Credentials
	err := r.db.pool.QueryRow(ctx, `
		SELECT user_id, password_hash, updated_at
		FROM credentials
		WHERE user_id = $1
	`, userID).Scan(&creds.UserID, &creds.PasswordHash, &creds.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting credentials: %w", err)
	}

	return &creds, nil
}

// UpdatePassword updates a user's password hash.
func (r *UserRepository) UpdatePassword(userID string, passwordHash string) error {
	ctx := context.Background()

	result, err := r.db.pool.Exec(ctx, `
		UPDATE credentials SET password_hash = $2
		WHERE user_id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	return nil
}
