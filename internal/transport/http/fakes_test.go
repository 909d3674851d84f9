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

package http

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/consent"
	"github.com/opentrusty/opentrusty/internal/identity"
	"github.com/opentrusty/opentrusty/internal/oauth2"
	"github.com/opentrusty/opentrusty/internal/session"
	"github.com/opentrusty/opentrusty/internal/token"
)

// Hand-rolled in-memory fakes, matching the teacher's test style across the
// packages these handlers are wired to (no mocking framework).

type fakeUserRepo struct {
	users       map[string]*identity.User
	credentials map[string]*identity.Credentials
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*identity.User{}, credentials: map[string]*identity.Credentials{}}
}

func (f *fakeUserRepo) Create(u *identity.User) error { f.users[u.ID] = u; return nil }
func (f *fakeUserRepo) AddCredentials(c *identity.Credentials) error {
	f.credentials[c.UserID] = c
	return nil
}
func (f *fakeUserRepo) GetByID(id string) (*identity.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}
func (f *fakeUserRepo) GetByEmail(email string) (*identity.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}
func (f *fakeUserRepo) GetByUsername(username string) (*identity.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}
func (f *fakeUserRepo) Update(u *identity.User) error { f.users[u.ID] = u; return nil }
func (f *fakeUserRepo) UpdateLockout(userID string, failedAttempts int, lockedUntil *time.Time) error {
	u, ok := f.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = lockedUntil
	return nil
}
func (f *fakeUserRepo) Delete(id string) error { delete(f.users, id); return nil }
func (f *fakeUserRepo) GetCredentials(userID string) (*identity.Credentials, error) {
	if c, ok := f.credentials[userID]; ok {
		return c, nil
	}
	return nil, identity.ErrUserNotFound
}
func (f *fakeUserRepo) UpdatePassword(userID string, passwordHash string) error {
	c, ok := f.credentials[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	c.PasswordHash = passwordHash
	return nil
}

type fakeSessionRepo struct {
	sessions map[string]*session.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*session.Session{}}
}

func (f *fakeSessionRepo) Create(s *session.Session) error { f.sessions[s.ID] = s; return nil }
func (f *fakeSessionRepo) Get(id string) (*session.Session, error) {
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, session.ErrSessionNotFound
}
func (f *fakeSessionRepo) Update(s *session.Session) error { f.sessions[s.ID] = s; return nil }
func (f *fakeSessionRepo) Delete(id string) error          { delete(f.sessions, id); return nil }
func (f *fakeSessionRepo) DeleteByUserID(userID string) error {
	for id, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, id)
		}
	}
	return nil
}
func (f *fakeSessionRepo) DeleteExpired() error {
	for id, s := range f.sessions {
		if s.IsExpired() {
			delete(f.sessions, id)
		}
	}
	return nil
}

type fakeClientRepo struct {
	byClientID map[string]*oauth2.Client
	byID       map[string]*oauth2.Client
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{byClientID: map[string]*oauth2.Client{}, byID: map[string]*oauth2.Client{}}
}

func (f *fakeClientRepo) put(c *oauth2.Client) { f.byClientID[c.ClientID] = c; f.byID[c.ID] = c }
func (f *fakeClientRepo) Create(c *oauth2.Client) error { f.put(c); return nil }
func (f *fakeClientRepo) GetByClientID(clientID string) (*oauth2.Client, error) {
	if c, ok := f.byClientID[clientID]; ok {
		return c, nil
	}
	return nil, oauth2.ErrClientNotFound
}
func (f *fakeClientRepo) GetByID(id string) (*oauth2.Client, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, oauth2.ErrClientNotFound
}
func (f *fakeClientRepo) Update(c *oauth2.Client) error { f.put(c); return nil }
func (f *fakeClientRepo) Delete(id string) error        { delete(f.byID, id); return nil }
func (f *fakeClientRepo) ListByOwner(ownerID string) ([]*oauth2.Client, error) {
	var out []*oauth2.Client
	for _, c := range f.byID {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeCodeRepo struct {
	codes map[string]*oauth2.AuthorizationCode
}

func newFakeCodeRepo() *fakeCodeRepo {
	return &fakeCodeRepo{codes: map[string]*oauth2.AuthorizationCode{}}
}

func (f *fakeCodeRepo) Create(c *oauth2.AuthorizationCode) error { f.codes[c.Code] = c; return nil }
func (f *fakeCodeRepo) GetByCode(code string) (*oauth2.AuthorizationCode, error) {
	if c, ok := f.codes[code]; ok {
		return c, nil
	}
	return nil, oauth2.ErrCodeNotFound
}
func (f *fakeCodeRepo) MarkAsUsed(code string) error {
	c, ok := f.codes[code]
	if !ok {
		return oauth2.ErrCodeNotFound
	}
	if c.Used {
		return oauth2.ErrCodeAlreadyUsed
	}
	c.MarkAsUsed()
	return nil
}
func (f *fakeCodeRepo) Delete(code string) error { delete(f.codes, code); return nil }
func (f *fakeCodeRepo) DeleteExpiredOrUsed() error {
	for k, c := range f.codes {
		if c.Used || c.IsExpired() {
			delete(f.codes, k)
		}
	}
	return nil
}

type fakeConsentRepo struct {
	byKey map[string]*consent.Consent
}

func newFakeConsentRepo() *fakeConsentRepo {
	return &fakeConsentRepo{byKey: map[string]*consent.Consent{}}
}

func consentKey(userID, clientID string) string { return userID + "|" + clientID }

func (f *fakeConsentRepo) Get(userID, clientID string) (*consent.Consent, error) {
	if c, ok := f.byKey[consentKey(userID, clientID)]; ok {
		return c, nil
	}
	return nil, consent.ErrConsentNotFound
}
func (f *fakeConsentRepo) Upsert(c *consent.Consent) error {
	f.byKey[consentKey(c.UserID, c.ClientID)] = c
	return nil
}
func (f *fakeConsentRepo) ListByUser(userID string) ([]*consent.Consent, error) {
	var out []*consent.Consent
	for _, c := range f.byKey {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// writeTestKeypair generates a fresh RSA key pair under t.TempDir() so
// token.LoadKeyProvider has real PEM files to read, the same fixture
// internal/token's own tests use.
func writeTestKeypair(t *testing.T) (privatePath, publicPath string) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	dir := t.TempDir()
	privatePath = filepath.Join(dir, "private.pem")
	publicPath = filepath.Join(dir, "public.pem")

	require.NoError(t, os.WriteFile(privatePath, privPEM, 0o600))
	require.NoError(t, os.WriteFile(publicPath, pubPEM, 0o644))

	return privatePath, publicPath
}

// testDeps bundles the fakes a test needs direct access to (to seed state
// or assert on it) alongside the Handler built on top of them.
type testDeps struct {
	handler     *Handler
	userRepo    *fakeUserRepo
	sessionRepo *fakeSessionRepo
	clientRepo  *fakeClientRepo
	codeRepo    *fakeCodeRepo
	consentRepo *fakeConsentRepo
}

// newTestHandler wires a full Handler from fakes and a real, temporary
// signing keypair, the same composition cmd/server/main.go performs
// against real Postgres repositories and a real on-disk keypair.
func newTestHandler(t *testing.T) *testDeps {
	t.Helper()

	privatePath, publicPath := writeTestKeypair(t)
	keys, err := token.LoadKeyProvider(privatePath, publicPath)
	require.NoError(t, err)

	auditLogger := audit.NewSlogLogger()

	userRepo := newFakeUserRepo()
	hasher := identity.NewPasswordHasher(64*1024, 1, 1, 16, 32)
	identityService := identity.NewService(userRepo, hasher, auditLogger, 5, 15*time.Minute)

	sessionRepo := newFakeSessionRepo()
	sessionService := session.NewService(sessionRepo, 24*time.Hour, time.Hour)

	clientRepo := newFakeClientRepo()
	codeRepo := newFakeCodeRepo()
	jwtService := token.NewJwtService(keys, "https://auth.example.test", "opentrusty", time.Hour)
	oauth2Service := oauth2.NewService(clientRepo, codeRepo, jwtService, identityService, auditLogger, 5*time.Minute)

	consentRepo := newFakeConsentRepo()
	consentService := consent.NewService(consentRepo, auditLogger)

	jwksService := token.NewJwksService(keys)

	handler := NewHandler(
		identityService,
		sessionService,
		oauth2Service,
		consentService,
		jwksService,
		auditLogger,
		SessionConfig{
			CookieName:     "opentrusty_session",
			CookiePath:     "/",
			CookieSecure:   false,
			CookieHTTPOnly: true,
			CookieSameSite: http.SameSiteLaxMode,
		},
		"opentrusty-test",
	)

	return &testDeps{
		handler:     handler,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		clientRepo:  clientRepo,
		codeRepo:    codeRepo,
		consentRepo: consentRepo,
	}
}
