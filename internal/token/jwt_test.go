package token

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJwtService(t *testing.T) *JwtService {
	t.Helper()
	privatePath, publicPath := writeTestKeypair(t)
	keys, err := LoadKeyProvider(privatePath, publicPath)
	require.NoError(t, err)
	return NewJwtService(keys, "https://auth.example.com", "resource-api", time.Hour)
}

func TestJwtService_IssueAccessToken_RoundTrips(t *testing.T) {
	s := newTestJwtService(t)

	tok, expiresIn, err := s.IssueAccessToken(context.Background(), "user-1", "user1@example.com", "user1", []string{"user", "admin"}, "client-1", "profile email")
	require.NoError(t, err)
	assert.Equal(t, 3600, expiresIn)
	assert.NotEmpty(t, tok)

	claims, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "user1@example.com", claims["email"])
	assert.Equal(t, "user1", claims["username"])
	assert.ElementsMatch(t, []any{"user", "admin"}, claims["roles"])
	assert.Equal(t, "client-1", claims["client_id"])
	assert.Equal(t, "profile email", claims["scope"])
	assert.Equal(t, "https://auth.example.com", claims["iss"])
}

func TestJwtService_IssueAccessToken_SetsKidHeader(t *testing.T) {
	s := newTestJwtService(t)

	tok, _, err := s.IssueAccessToken(context.Background(), "user-1", "user1@example.com", "user1", []string{"user"}, "client-1", "profile")
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, s.keys.KeyID(), parsed.Header["kid"])
}

func TestJwtService_Verify_RejectsTokenFromDifferentKey(t *testing.T) {
	s1 := newTestJwtService(t)
	s2 := newTestJwtService(t)

	tok, _, err := s1.IssueAccessToken(context.Background(), "user-1", "user1@example.com", "user1", []string{"user"}, "client-1", "profile")
	require.NoError(t, err)

	_, err = s2.Verify(tok)
	assert.Error(t, err)
}

func TestJwtService_Verify_RejectsExpiredToken(t *testing.T) {
	privatePath, publicPath := writeTestKeypair(t)
	keys, err := LoadKeyProvider(privatePath, publicPath)
	require.NoError(t, err)
	s := NewJwtService(keys, "https://auth.example.com", "resource-api", -time.Minute)

	tok, _, err := s.IssueAccessToken(context.Background(), "user-1", "user1@example.com", "user1", []string{"user"}, "client-1", "profile")
	require.NoError(t, err)

	_, err = s.Verify(tok)
	assert.Error(t, err)
}
