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
	"errors"
	"time"
)

// Domain errors (internal)
var (
	ErrClientNotFound           = errors.New("client not found")
	ErrClientAlreadyExists      = errors.New("client already exists")
	ErrDomainInvalidRedirectURI = errors.New("invalid redirect URI")
	ErrDomainInvalidGrantType   = errors.New("invalid grant type")
	ErrCodeExpired              = errors.New("authorization code expired")
	ErrCodeAlreadyUsed          = errors.New("authorization code already used")
	ErrCodeNotFound             = errors.New("authorization code not found")
	ErrDomainInvalidClient      = errors.New("invalid client credentials")
	ErrDomainInvalidUser        = errors.New("invalid user")
)

// GrantType enumerates the grant types a client may be configured for. Only
// authorization_code is exercised by the protocol state machine here; the
// refresh_token member is retained for client-configuration round-tripping
// even though the refresh_token grant is itself out of scope (spec.md §1).
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// Client represents a registered OAuth2 client application.
type Client struct {
	ID                  string
	ClientID            string
	ClientSecretHash    string
	ClientSecretOldHash string
	SecretOldExpiresAt  *time.Time
	ClientName          string
	RedirectURIs        []string
	GrantTypes          []string
	IsPublic            bool
	IsActive            bool
	OwnerID             string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsOwnedBy reports whether userID is the owning account of this client.
func (c *Client) IsOwnedBy(userID string) bool {
	return c.OwnerID == userID
}

// IsValidRedirectURI checks exact string membership against the registered
// list. Per spec.md §9 Open Question, matching is exact; no normalization.
func (c *Client) IsValidRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// SupportsGrantType reports membership in the client's configured grant types.
func (c *Client) SupportsGrantType(grantType string) bool {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// PublicClient is the externally-visible client projection: it omits both
// the current and previous secret hashes.
type PublicClient struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	ClientName   string    `json:"client_name"`
	RedirectURIs []string  `json:"redirect_uris"`
	GrantTypes   []string  `json:"grant_types"`
	IsPublic     bool      `json:"is_public"`
	IsActive     bool      `json:"is_active"`
	OwnerID      string    `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ToPublic projects a Client to its externally safe representation.
func (c *Client) ToPublic() PublicClient {
	return PublicClient{
		ID:           c.ID,
		ClientID:     c.ClientID,
		ClientName:   c.ClientName,
		RedirectURIs: c.RedirectURIs,
		GrantTypes:   c.GrantTypes,
		IsPublic:     c.IsPublic,
		IsActive:     c.IsActive,
		OwnerID:      c.OwnerID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// AuthorizationCode is a short-lived, single-use authorization code bound
// to a (client, redirect_uri, PKCE challenge, user, scope) tuple.
type AuthorizationCode struct {
	Code                string
	UserID              string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	Used                bool
	UsedAt              *time.Time
}

// IsExpired uses strict comparison: expiresAt <= now is expired.
func (a *AuthorizationCode) IsExpired() bool {
	return !time.Now().Before(a.ExpiresAt)
}

// IsValid holds iff the code is neither used nor expired.
func (a *AuthorizationCode) IsValid() bool {
	return !a.Used && !a.IsExpired()
}

// MarkAsUsed flips the in-memory flag. Idempotent at the entity level; the
// repository guarantees the atomic compare-and-set at the store level
// (spec.md §5).
func (a *AuthorizationCode) MarkAsUsed() {
	if a.Used {
		return
	}
	now := time.Now()
	a.Used = true
	a.UsedAt = &now
}

// ClientRepository persists OAuth2 clients.
type ClientRepository interface {
	Create(client *Client) error
	GetByClientID(clientID string) (*Client, error)
	GetByID(id string) (*Client, error)
	Update(client *Client) error
	Delete(id string) error
	ListByOwner(ownerID string) ([]*Client, error)
}

// AuthorizationCodeRepository persists authorization codes.
type AuthorizationCodeRepository interface {
	Create(code *AuthorizationCode) error
	GetByCode(code string) (*AuthorizationCode, error)

	// MarkAsUsed flips used=false -> used=true atomically. It returns
	// ErrCodeAlreadyUsed if the row exists but was already used, and
	// ErrCodeNotFound if no row matches the code at all. This distinction
	// is what closes the single-use race described in spec.md §5.
	MarkAsUsed(code string) error

	Delete(code string) error

	// DeleteExpiredOrUsed removes codes that are expired or already used.
	// Deletion is advisory: used codes remain unusable whether or not this
	// has run yet (spec.md §5).
	DeleteExpiredOrUsed() error
}
