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
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"github.com/opentrusty/opentrusty/internal/audit"
)

// TokenIssuer signs access tokens for a granted (user, client, scope) tuple.
// Implemented by internal/token.JwtService; kept as an interface here the
// same way the teacher decouples internal/oauth2 from internal/oidc via
// the OIDCProvider hook. email, username, and roles are carried through as
// claims per spec.md §4.8 step 10 / §4.9.
type TokenIssuer interface {
	IssueAccessToken(ctx context.Context, userID, email, username string, roles []string, clientID, scope string) (token string, expiresIn int, err error)
}

// UserChecker exposes the identity facts ExchangeToken needs: the claims to
// carry into the access token, whether the user may still authenticate, and
// whether the user resolves at all. Implemented by internal/identity.Service
// via plain-type return values so identity need not import this package.
type UserChecker interface {
	GetUserClaims(ctx context.Context, userID string) (email, username string, roles []string, canLogin bool, err error)
}

// Service provides the OAuth2 authorization-code + PKCE use cases.
type Service struct {
	clientRepo  ClientRepository
	codeRepo    AuthorizationCodeRepository
	tokens      TokenIssuer
	users       UserChecker
	auditLogger audit.Logger

	authCodeLifetime time.Duration
}

// NewService builds the OAuth2 service. authCodeLifetime comes from
// OAUTH2_AUTH_CODE_EXPIRES_IN (spec.md §6).
func NewService(
	clientRepo ClientRepository,
	codeRepo AuthorizationCodeRepository,
	tokens TokenIssuer,
	users UserChecker,
	auditLogger audit.Logger,
	authCodeLifetime time.Duration,
) *Service {
	if authCodeLifetime <= 0 {
		authCodeLifetime = 5 * time.Minute
	}
	return &Service{
		clientRepo:       clientRepo,
		codeRepo:         codeRepo,
		tokens:           tokens,
		users:            users,
		auditLogger:      auditLogger,
		authCodeLifetime: authCodeLifetime,
	}
}

// AuthorizeRequest is the parsed /auth/authorize query.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// TokenRequest is the parsed /auth/token form body.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
}

// TokenResponse is the JSON body returned from /auth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// ValidateClient implements spec.md §4.4: client_id lookup, isActive check,
// redirect_uri exact match, response_type support, and PKCE shape checks.
// It never distinguishes "client not found" from "client disabled" in the
// error returned to the caller: both collapse to ErrDomainInvalidClient so
// the HTTP boundary cannot be used to enumerate client ids.
func (s *Service) ValidateClient(ctx context.Context, req *AuthorizeRequest) (*Client, error) {
	client, err := s.clientRepo.GetByClientID(req.ClientID)
	if err != nil {
		return nil, ErrDomainInvalidClient
	}

	if !client.IsActive {
		return nil, ErrDomainInvalidClient
	}

	if !client.IsValidRedirectURI(req.RedirectURI) {
		return nil, ErrDomainInvalidRedirectURI
	}

	if !client.SupportsGrantType(GrantTypeAuthorizationCode) {
		return nil, ErrDomainInvalidClient
	}

	if req.ResponseType != "code" {
		return nil, NewError(ErrUnsupportedGrantType, "response_type must be 'code'")
	}

	if _, err := NewCodeChallenge(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
		return nil, err
	}

	return client, nil
}

// GenerateAuthCode implements spec.md §4.5: mints a single-use authorization
// code bound to the validated client, the authenticated user, and the PKCE
// challenge carried on the request.
func (s *Service) GenerateAuthCode(ctx context.Context, req *AuthorizeRequest, userID string) (*AuthorizationCode, error) {
	code := &AuthorizationCode{
		Code:                generateCode(),
		UserID:              userID,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           time.Now(),
		ExpiresAt:           time.Now().Add(s.authCodeLifetime),
	}

	if err := s.codeRepo.Create(code); err != nil {
		return nil, err
	}

	return code, nil
}

// ExchangeToken implements spec.md §4.8's ordered checks. Every failure
// before step 9 collapses into one of a small set of OAuth-specific error
// kinds (anti-oracle, spec.md §7): callers cannot distinguish "bad code"
// from "bad client" from "bad verifier" by error shape alone beyond what
// RFC 6749's error taxonomy already exposes.
func (s *Service) ExchangeToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	// 1. grant_type must be authorization_code.
	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, NewError(ErrUnsupportedGrantType, "grant_type must be 'authorization_code'")
	}

	// 2. Client must exist, be active, and support this grant type.
	client, err := s.clientRepo.GetByClientID(req.ClientID)
	if err != nil {
		return nil, ErrDomainInvalidClient
	}
	if !client.IsActive {
		return nil, ErrDomainInvalidClient
	}
	if !client.SupportsGrantType(GrantTypeAuthorizationCode) {
		return nil, ErrDomainInvalidClient
	}

	// 3. Confidential clients must present a matching secret.
	if !client.IsPublic {
		if !verifySecret(req.ClientSecret, client.ClientSecretHash) {
			return nil, ErrDomainInvalidClient
		}
	}

	// 4. The code must exist.
	code, err := s.codeRepo.GetByCode(req.Code)
	if err != nil {
		return nil, ErrCodeNotFound
	}

	// 5. The code must belong to this client.
	if code.ClientID != req.ClientID {
		return nil, ErrDomainInvalidClient
	}

	// 6. redirect_uri must match exactly what was authorized.
	if code.RedirectURI != req.RedirectURI {
		return nil, ErrDomainInvalidRedirectURI
	}

	// 7. The code must still be valid: unused and unexpired. Marking used
	// happens atomically at the repository so two concurrent exchanges of
	// the same code cannot both succeed (spec.md §5).
	if code.IsExpired() {
		return nil, ErrCodeExpired
	}
	if err := s.codeRepo.MarkAsUsed(req.Code); err != nil {
		// ErrCodeAlreadyUsed or ErrCodeNotFound (lost the race to another
		// exchange, or the code vanished between GetByCode and here).
		return nil, err
	}

	// 8. PKCE verification: the presented verifier must match the stored
	// challenge under its declared method.
	challenge, err := NewCodeChallenge(code.CodeChallenge, code.CodeChallengeMethod)
	if err != nil {
		return nil, err
	}
	if !VerifyPKCE(challenge, req.CodeVerifier) {
		return nil, NewError(ErrInvalidGrant, "code_verifier does not match code_challenge")
	}

	// 9. User eligibility and claims. A user that no longer resolves at all
	// (deleted, never existed) is a hard failure (spec.md §4.8 step 7,
	// InvalidUser). A user that resolves but is inactive does NOT block
	// token issuance: we log the anomaly and proceed. This is the spec's
	// explicit instruction, not an oversight — reversing it would be
	// guessing at intent the spec says not to guess at.
	var email, username string
	var roles []string
	if s.users != nil {
		var canLogin bool
		email, username, roles, canLogin, err = s.users.GetUserClaims(ctx, code.UserID)
		if err != nil {
			return nil, ErrDomainInvalidUser
		}
		if !canLogin {
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeTokenIssued,
				ActorID:  code.UserID,
				Resource: "token",
				Metadata: map[string]any{
					"client_id": client.ClientID,
					"warning":   "token issued for inactive user",
				},
			})
		}
	}

	// 10. Issue the signed access token.
	accessToken, expiresIn, err := s.tokens.IssueAccessToken(ctx, code.UserID, email, username, roles, client.ClientID, code.Scope)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to issue access token")
	}

	// 11. Audit and respond.
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  code.UserID,
		Resource: "token",
		Metadata: map[string]any{
			"client_id": client.ClientID,
			"scope":     code.Scope,
		},
	})

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		Scope:       code.Scope,
	}, nil
}

func generateCode() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func newID() string {
	return uuid.NewString()
}

func verifySecret(presented, stored string) bool {
	if stored == "" {
		return false
	}
	sum := sha256.Sum256([]byte(presented))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(stored)) == 1
}
