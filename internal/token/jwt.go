package token

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JwtService signs and verifies RS256 access tokens. It implements
// internal/oauth2.TokenIssuer, keeping the oauth2 package ignorant of the
// signing mechanics the same way internal/oidc's OIDCProvider hook kept the
// old service ignorant of ID token construction.
type JwtService struct {
	keys      *KeyProvider
	issuer    string
	audience  string
	expiresIn time.Duration
}

// NewJwtService builds a JwtService bound to a loaded keypair.
func NewJwtService(keys *KeyProvider, issuer, audience string, expiresIn time.Duration) *JwtService {
	return &JwtService{keys: keys, issuer: issuer, audience: audience, expiresIn: expiresIn}
}

// IssueAccessToken mints an RS256 access token scoped to userID, clientID
// and scope, carrying email/username/roles claims (spec.md §4.8 step 10,
// §4.9), satisfying internal/oauth2.TokenIssuer.
func (s *JwtService) IssueAccessToken(ctx context.Context, userID, email, username string, roles []string, clientID, scope string) (string, int, error) {
	now := time.Now()
	expiresIn := int(s.expiresIn.Seconds())

	claims := jwt.MapClaims{
		"iss":       s.issuer,
		"aud":       s.audience,
		"sub":       userID,
		"email":     email,
		"username":  username,
		"roles":     roles,
		"client_id": clientID,
		"scope":     scope,
		"iat":       jwt.NewNumericDate(now),
		"nbf":       jwt.NewNumericDate(now),
		"exp":       jwt.NewNumericDate(now.Add(s.expiresIn)),
		"jti":       jti(userID, clientID, now),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.keys.KeyID()

	signed, err := tok.SignedString(s.keys.private)
	if err != nil {
		return "", 0, fmt.Errorf("signing access token: %w", err)
	}

	return signed, expiresIn, nil
}

// Verify parses and validates a previously issued access token, returning
// its claims. No HTTP route in this module authenticates bearer tokens with
// it; the package's own tests and benchmarks call it.
func (s *JwtService) Verify(tokenString string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return &s.keys.private.PublicKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience))
	if err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid access token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}
	return claims, nil
}

// jti derives a deterministic-looking but unique token identifier from the
// issuance inputs and timestamp, avoiding a dependency on crypto/rand for a
// value that is diagnostic only, never a revocation key.
func jti(userID, clientID string, now time.Time) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", userID, clientID, now.UnixNano())))
	return base64.RawURLEncoding.EncodeToString(h[:12])
}
