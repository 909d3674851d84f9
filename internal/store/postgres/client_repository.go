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

	"github.com/opentrusty/opentrusty/internal/oauth2"
)

// ClientRepository implements oauth2.ClientRepository.
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a new client repository.
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create creates a new OAuth2 client.
func (r *ClientRepository) Create(client *oauth2.Client) error {
	ctx := context.Background()

	redirectURIs, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("marshaling redirect URIs: %w", err)
	}
	grantTypes, err := json.Marshal(client.GrantTypes)
	if err != nil {
		return fmt.Errorf("marshaling grant types: %w", err)
	}

	var oldHash sql.NullString
	if client.ClientSecretOldHash != "" {
		oldHash = sql.NullString{String: client.ClientSecretOldHash, Valid: true}
	}
	var oldExpiresAt sql.NullTime
	if client.SecretOldExpiresAt != nil {
		oldExpiresAt = sql.NullTime{Time: *client.SecretOldExpiresAt, Valid: true}
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO oauth2_clients (
			id, client_id, client_secret_hash, client_secret_old_hash, secret_old_expires_at,
			client_name, redirect_uris, grant_types, is_public, is_active,
			owner_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		client.ID, client.ClientID, client.ClientSecretHash, oldHash, oldExpiresAt,
		client.ClientName, redirectURIs, grantTypes, client.IsPublic, client.IsActive,
		client.OwnerID, client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	return nil
}

func scanClient(row pgx.Row) (*oauth2.Client, error) {
	var client oauth2.Client
	var redirectURIsJSON, grantTypesJSON []byte
	var oldHash sql.NullString
	var oldExpiresAt sql.NullTime

	err := row.Scan(
		&client.ID, &client.ClientID, &client.ClientSecretHash, &oldHash, &oldExpiresAt,
		&client.ClientName, &redirectURIsJSON, &grantTypesJSON, &client.IsPublic, &client.IsActive,
		&client.OwnerID, &client.CreatedAt, &client.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(redirectURIsJSON, &client.RedirectURIs); err != nil {
		return nil, fmt.Errorf("unmarshaling redirect URIs: %w", err)
	}
	if err := json.Unmarshal(grantTypesJSON, &client.GrantTypes); err != nil {
		return nil, fmt.Errorf("unmarshaling grant types: %w", err)
	}
	if oldHash.Valid {
		client.ClientSecretOldHash = oldHash.String
	}
	if oldExpiresAt.Valid {
		client.SecretOldExpiresAt = &oldExpiresAt.Time
	}

	return &client, nil
}

const selectClientColumns = `
	id, client_id, client_secret_hash, client_secret_old_hash, secret_old_expires_at,
	client_name, redirect_uris, grant_types, is_public, is_active,
	owner_id, created_at, updated_at
`

// GetByClientID retrieves a client by its public client_id.
func (r *ClientRepository) GetByClientID(clientID string) (*oauth2.Client, error) {
	ctx := context.Background()

	row := r.db.pool.QueryRow(ctx, `
		SELECT `+selectClientColumns+`
		FROM oauth2_clients
		WHERE client_id = $1
	`, clientID)

	client, err := scanClient(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, oauth2.ErrClientNotFound
		}
		return nil, fmt.Errorf("getting client: %w", err)
	}
	return client, nil
}

// GetByID retrieves a client by its internal id.
func (r *ClientRepository) GetByID(id string) (*oauth2.Client, error) {
	ctx := context.Background()

	row := r.db.pool.QueryRow(ctx, `
		SELECT `+selectClientColumns+`
		FROM oauth2_clients
		WHERE id = $1
	`, id)

	client, err := scanClient(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, oauth2.ErrClientNotFound
		}
		return nil, fmt.Errorf("getting client: %w", err)
	}
	return client, nil
}

// Update persists mutable client fields, including secret rotation state.
func (r *ClientRepository) Update(client *oauth2.Client) error {
	ctx := context.Background()

	redirectURIs, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("marshaling redirect URIs: %w", err)
	}
	grantTypes, err := json.Marshal(client.GrantTypes)
	if err != nil {
		return fmt.Errorf("marshaling grant types: %w", err)
	}

	var oldHash sql.NullString
	if client.ClientSecretOldHash != "" {
		oldHash = sql.NullString{String: client.ClientSecretOldHash, Valid: true}
	}
	var oldExpiresAt sql.NullTime
	if client.SecretOldExpiresAt != nil {
		oldExpiresAt = sql.NullTime{Time: *client.SecretOldExpiresAt, Valid: true}
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE oauth2_clients SET
			client_secret_hash = $2,
			client_secret_old_hash = $3,
			secret_old_expires_at = $4,
			client_name = $5,
			redirect_uris = $6,
			grant_types = $7,
			is_public = $8,
			is_active = $9,
			updated_at = $10
		WHERE id = $1
	`,
		client.ID, client.ClientSecretHash, oldHash, oldExpiresAt,
		client.ClientName, redirectURIs, grantTypes, client.IsPublic, client.IsActive,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("updating client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrClientNotFound
	}
	return nil
}

// Delete removes a client row outright; callers that want a reversible
// disable should instead flip IsActive via Update.
func (r *ClientRepository) Delete(id string) error {
	ctx := context.Background()

	result, err := r.db.pool.Exec(ctx, `DELETE FROM oauth2_clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrClientNotFound
	}
	return nil
}

// ListByOwner retrieves every client registered by ownerID.
func (r *ClientRepository) ListByOwner(ownerID string) ([]*oauth2.Client, error) {
	ctx := context.Background()

	rows, err := r.db.pool.Query(ctx, `
		SELECT `+selectClientColumns+`
		FROM oauth2_clients
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying clients: %w", err)
	}
	defer rows.Close()

	var clients []*oauth2.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clients: %w", err)
	}

	return clients, nil
}
