// Package consent implements the user consent gate that sits between
// client validation and authorization-code issuance (spec.md §4.6): a
// client may not receive a code on a user's behalf until that user has
// granted the requested scope at least once, and a prior grant for the
// same (user, client) pair is remembered and silently reused.
package consent

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrConsentNotFound = errors.New("consent not found")
	ErrConsentDenied   = errors.New("user denied consent")
)

// Consent records that a user has granted a client a set of scopes.
type Consent struct {
	ID        string
	UserID    string
	ClientID  string
	Scope     string
	GrantedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
	RevokedAt *time.Time
}

// IsActive holds iff the consent has not been revoked and, if it carries an
// expiry, has not yet passed it (spec.md §3: revokedAt=null ∧ (expiresAt=null
// ∨ expiresAt > now)).
func (c *Consent) IsActive() bool {
	if c.RevokedAt != nil {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(time.Now())
}

// Covers reports whether this consent is active and its scope already
// covers every scope token requested, so a superset grant need not be
// re-shown to the user.
func (c *Consent) Covers(requestedScope string) bool {
	if !c.IsActive() {
		return false
	}
	granted := splitScope(c.Scope)
	for _, want := range splitScope(requestedScope) {
		if _, ok := granted[want]; !ok {
			return false
		}
	}
	return true
}

func splitScope(scope string) map[string]struct{} {
	set := make(map[string]struct{})
	start := 0
	for i := 0; i <= len(scope); i++ {
		if i == len(scope) || scope[i] == ' ' {
			if i > start {
				set[scope[start:i]] = struct{}{}
			}
			start = i + 1
		}
	}
	return set
}

// Repository persists consent grants, one row per (user, client) pair.
type Repository interface {
	Get(userID, clientID string) (*Consent, error)

	// Upsert atomically creates or replaces the consent row for (userID,
	// clientID), the same compare-and-set discipline the authorization
	// code repository uses for single-use codes (spec.md §5).
	Upsert(consent *Consent) error

	// ListByUser returns every consent grant a user holds, for the
	// /user/me/consents listing.
	ListByUser(userID string) ([]*Consent, error)

	DeleteByUser(userID string) error
}
