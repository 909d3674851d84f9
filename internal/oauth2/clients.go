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

package oauth2

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"
)

// ErrNotOwner is returned when a caller attempts to manage a client they do
// not own (spec.md §4.11, §7 Forbidden).
var ErrNotOwner = errors.New("client is not owned by the requesting user")

// CreateClientRequest is the input to RegisterClient.
type CreateClientRequest struct {
	ClientName   string   `validate:"required,min=1,max=200"`
	RedirectURIs []string `validate:"required,min=1,dive,url"`
	IsPublic     bool
}

// RegisterClient implements spec.md §4.11's client creation use case.
// Confidential clients receive a freshly generated secret, returned exactly
// once as the second return value; only its hash is persisted.
func (s *Service) RegisterClient(ctx context.Context, ownerID string, req CreateClientRequest) (*Client, string, error) {
	client := &Client{
		ID:           newID(),
		ClientID:     newID(),
		ClientName:   req.ClientName,
		RedirectURIs: req.RedirectURIs,
		GrantTypes:   []string{GrantTypeAuthorizationCode},
		IsPublic:     req.IsPublic,
		IsActive:     true,
		OwnerID:      ownerID,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	var rawSecret string
	if !req.IsPublic {
		rawSecret = generateSecret()
		client.ClientSecretHash = hashSecret(rawSecret)
	}

	if err := s.clientRepo.Create(client); err != nil {
		return nil, "", err
	}

	return client, rawSecret, nil
}

// ListClients returns the clients owned by ownerID (spec.md §4.11).
func (s *Service) ListClients(ctx context.Context, ownerID string) ([]*Client, error) {
	return s.clientRepo.ListByOwner(ownerID)
}

// GetClient fetches a client by its internal id, checking ownership.
func (s *Service) GetClient(ctx context.Context, id, ownerID string) (*Client, error) {
	client, err := s.clientRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !client.IsOwnedBy(ownerID) {
		return nil, ErrNotOwner
	}
	return client, nil
}

// UpdateClientRequest carries the mutable fields of a client.
type UpdateClientRequest struct {
	ClientName   *string
	RedirectURIs []string
	IsActive     *bool
}

// UpdateClient applies a partial update to a client owned by ownerID.
func (s *Service) UpdateClient(ctx context.Context, id, ownerID string, req UpdateClientRequest) (*Client, error) {
	client, err := s.clientRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !client.IsOwnedBy(ownerID) {
		return nil, ErrNotOwner
	}

	if req.ClientName != nil {
		client.ClientName = *req.ClientName
	}
	if req.RedirectURIs != nil {
		client.RedirectURIs = req.RedirectURIs
	}
	if req.IsActive != nil {
		client.IsActive = *req.IsActive
	}
	client.UpdatedAt = time.Now()

	if err := s.clientRepo.Update(client); err != nil {
		return nil, err
	}
	return client, nil
}

// DeleteClient performs a soft delete (isActive=false) per spec.md §4.11.
func (s *Service) DeleteClient(ctx context.Context, id, ownerID string) error {
	client, err := s.clientRepo.GetByID(id)
	if err != nil {
		return err
	}
	if !client.IsOwnedBy(ownerID) {
		return ErrNotOwner
	}
	client.IsActive = false
	client.UpdatedAt = time.Now()
	return s.clientRepo.Update(client)
}

// RotateSecret issues a new client secret, retaining the previous hash for
// a grace window (spec.md §4.11) so in-flight callers using the old secret
// are not immediately locked out.
func (s *Service) RotateSecret(ctx context.Context, id, ownerID string, graceWindow time.Duration) (*Client, string, error) {
	client, err := s.clientRepo.GetByID(id)
	if err != nil {
		return nil, "", err
	}
	if !client.IsOwnedBy(ownerID) {
		return nil, "", ErrNotOwner
	}
	if client.IsPublic {
		return nil, "", errors.New("public clients have no secret to rotate")
	}

	rawSecret := generateSecret()
	expiresAt := time.Now().Add(graceWindow)

	client.ClientSecretOldHash = client.ClientSecretHash
	client.SecretOldExpiresAt = &expiresAt
	client.ClientSecretHash = hashSecret(rawSecret)
	client.UpdatedAt = time.Now()

	if err := s.clientRepo.Update(client); err != nil {
		return nil, "", err
	}

	return client, rawSecret, nil
}

func generateSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// hashSecret must stay in sync with verifySecret's comparison in service.go.
func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
