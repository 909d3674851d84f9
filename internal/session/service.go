package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Service provides session lifecycle operations: creation, lookup with
// sliding idle-timeout refresh, and destruction. Grounded on the usage
// patterns wired through the HTTP layer's AuthMiddleware and login/logout
// handlers, which the teacher implements inline against the repository
// without an intermediate service — this type gives that logic one home.
type Service struct {
	repo        Repository
	lifetime    time.Duration
	idleTimeout time.Duration
}

// NewService builds a session service. lifetime bounds the absolute session
// age; idleTimeout bounds the gap between requests before a session is
// considered stale, independent of lifetime.
func NewService(repo Repository, lifetime, idleTimeout time.Duration) *Service {
	return &Service{repo: repo, lifetime: lifetime, idleTimeout: idleTimeout}
}

// Create starts a new session for userID.
func (s *Service) Create(ctx context.Context, userID, ipAddress, userAgent string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:         generateSessionID(),
		UserID:     userID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.lifetime),
	}

	if err := s.repo.Create(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get retrieves a session by ID, rejecting it if expired or idle-timed-out.
// A session found to be idle-expired is proactively deleted so it cannot
// be resurrected by a later lookup racing the cleanup ticker.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(sessionID)
	if err != nil {
		return nil, err
	}

	if sess.IsExpired() {
		_ = s.repo.Delete(sessionID)
		return nil, ErrSessionExpired
	}

	if sess.IsIdle(s.idleTimeout) {
		_ = s.repo.Delete(sessionID)
		return nil, ErrSessionInvalid
	}

	return sess, nil
}

// Refresh slides the session's last-seen timestamp forward, keeping an
// actively used session alive across the idle timeout window.
func (s *Service) Refresh(ctx context.Context, sess *Session) error {
	sess.LastSeenAt = time.Now()
	return s.repo.Update(sess)
}

// Destroy ends a single session (logout).
func (s *Service) Destroy(ctx context.Context, sessionID string) error {
	return s.repo.Delete(sessionID)
}

// DestroyByUser ends every session belonging to userID, e.g. on password
// change.
func (s *Service) DestroyByUser(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(userID)
}

// CleanupExpired removes expired sessions; invoked on a ticker from the
// composition root (spec.md §5 background cleanup contract).
func (s *Service) CleanupExpired(ctx context.Context) error {
	return s.repo.DeleteExpired()
}

func generateSessionID() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
