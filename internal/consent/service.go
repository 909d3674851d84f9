package consent

import (
	"context"
	"time"

	"github.com/opentrusty/opentrusty/internal/audit"
)

// Service implements the Check/Show/Process trio spec.md §4.6 names.
type Service struct {
	repo        Repository
	auditLogger audit.Logger
}

// NewService builds the consent service.
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, auditLogger: auditLogger}
}

// Check reports whether userID has already granted clientID every scope in
// requestedScope. A prior superset grant silently satisfies a narrower
// request; it is never downgraded.
func (s *Service) Check(ctx context.Context, userID, clientID, requestedScope string) (bool, error) {
	existing, err := s.repo.Get(userID, clientID)
	if err != nil {
		if err == ErrConsentNotFound {
			return false, nil
		}
		return false, err
	}
	return existing.Covers(requestedScope), nil
}

// Show is the read path for the consent confirmation screen: it returns
// the consent record that would be reused if the user declines to change
// anything, or nil if none exists yet. Handlers use this to pre-populate
// the GET /auth/authorize/consent page.
func (s *Service) Show(ctx context.Context, userID, clientID string) (*Consent, error) {
	existing, err := s.repo.Get(userID, clientID)
	if err != nil {
		if err == ErrConsentNotFound {
			return nil, nil
		}
		return nil, err
	}
	return existing, nil
}

// ListForUser returns every consent grant userID currently holds, for the
// /user/me/consents listing.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Consent, error) {
	return s.repo.ListByUser(userID)
}

// Revoke sets revokedAt on the consent row for (userID, clientID), per
// spec.md §3's data model: consents are revoked by setting revokedAt, never
// deleted outright. Revoking a consent that does not exist (or is already
// revoked) is a no-op success, since the desired end state — no active
// consent — already holds.
func (s *Service) Revoke(ctx context.Context, userID, clientID string) error {
	existing, err := s.repo.Get(userID, clientID)
	if err != nil {
		if err == ErrConsentNotFound {
			return nil
		}
		return err
	}
	if !existing.IsActive() {
		return nil
	}

	now := time.Now()
	existing.RevokedAt = &now
	existing.UpdatedAt = now

	if err := s.repo.Upsert(existing); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeConsentRevoked,
		ActorID:  userID,
		Resource: audit.ResourceConsent,
		Metadata: map[string]any{audit.AttrClientID: clientID},
	})

	return nil
}

// Process records the user's decision from POST /auth/authorize/decision.
// Approving persists the consent grant, replacing any previously stored
// scope for the same user and client; denying returns
// ErrConsentDenied without writing anything, matching spec.md §7's DenyConsent
// taxonomy entry.
func (s *Service) Process(ctx context.Context, userID, clientID, scope string, approved bool) error {
	if !approved {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeConsentRevoked,
			ActorID:  userID,
			Resource: audit.ResourceConsent,
			Metadata: map[string]any{audit.AttrClientID: clientID},
		})
		return ErrConsentDenied
	}

	now := time.Now()
	consent := &Consent{
		UserID:    userID,
		ClientID:  clientID,
		Scope:     scope,
		GrantedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Upsert(consent); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeConsentGranted,
		ActorID:  userID,
		Resource: audit.ResourceConsent,
		Metadata: map[string]any{audit.AttrClientID: clientID, audit.AttrScope: scope},
	})

	return nil
}
