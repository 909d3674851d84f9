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
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/opentrusty/internal/consent"
)

// ConsentRepository implements consent.Repository.
type ConsentRepository struct {
	db *DB
}

// NewConsentRepository creates a new consent repository.
func NewConsentRepository(db *DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

// Get retrieves the consent row for a (user, client) pair.
func (r *ConsentRepository) Get(userID, clientID string) (*consent.Consent, error) {
	ctx := context.Background()

	var c consent.Consent
	var expiresAt, revokedAt sql.NullTime
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, client_id, scope, granted_at, updated_at, expires_at, revoked_at
		FROM consents
		WHERE user_id = $1 AND client_id = $2
	`, userID, clientID).Scan(&c.ID, &c.UserID, &c.ClientID, &c.Scope, &c.GrantedAt, &c.UpdatedAt, &expiresAt, &revokedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, consent.ErrConsentNotFound
		}
		return nil, fmt.Errorf("getting consent: %w", err)
	}
	if expiresAt.Valid {
		c.ExpiresAt = &expiresAt.Time
	}
	if revokedAt.Valid {
		c.RevokedAt = &revokedAt.Time
	}

	return &c, nil
}

// Upsert creates or replaces the consent row for (UserID, ClientID), relying
// on the table's unique (user_id, client_id) constraint to make the
// operation a single atomic statement rather than a read-then-write.
func (r *ConsentRepository) Upsert(c *consent.Consent) error {
	ctx := context.Background()

	var expiresAt, revokedAt sql.NullTime
	if c.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *c.ExpiresAt, Valid: true}
	}
	if c.RevokedAt != nil {
		revokedAt = sql.NullTime{Time: *c.RevokedAt, Valid: true}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO consents (user_id, client_id, scope, granted_at, updated_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, client_id)
		DO UPDATE SET scope = $3, updated_at = $5, expires_at = $6, revoked_at = $7
	`, c.UserID, c.ClientID, c.Scope, c.GrantedAt, c.UpdatedAt, expiresAt, revokedAt)
	if err != nil {
		return fmt.Errorf("upserting consent: %w", err)
	}

	return nil
}

// ListByUser returns every consent grant a user holds, ordered by grant time.
func (r *ConsentRepository) ListByUser(userID string) ([]*consent.Consent, error) {
	ctx := context.Background()

	rows, err := r.db.pool.Query(ctx, `
		SELECT id, user_id, client_id, scope, granted_at, updated_at, expires_at, revoked_at
		FROM consents
		WHERE user_id = $1
		ORDER BY granted_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing consents: %w", err)
	}
	defer rows.Close()

	var consents []*consent.Consent
	for rows.Next() {
		var c consent.Consent
		var expiresAt, revokedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserID, &c.ClientID, &c.Scope, &c.GrantedAt, &c.UpdatedAt, &expiresAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("scanning consent: %w", err)
		}
		if expiresAt.Valid {
			c.ExpiresAt = &expiresAt.Time
		}
		if revokedAt.Valid {
			c.RevokedAt = &revokedAt.Time
		}
		consents = append(consents, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating consents: %w", err)
	}

	return consents, nil
}

// DeleteByUser removes every consent grant a user has recorded, used when an
// account is deleted.
func (r *ConsentRepository) DeleteByUser(userID string) error {
	ctx := context.Background()

	_, err := r.db.pool.Exec(ctx, `DELETE FROM consents WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting consents: %w", err)
	}

	return nil
}
