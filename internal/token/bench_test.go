package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeKeypairTo(b *testing.B, dir string) (privatePath, publicPath string) {
	b.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		b.Fatal(err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		b.Fatal(err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		b.Fatal(err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	privatePath = filepath.Join(dir, "private.pem")
	publicPath = filepath.Join(dir, "public.pem")
	if err := os.WriteFile(privatePath, privPEM, 0o600); err != nil {
		b.Fatal(err)
	}
	if err := os.WriteFile(publicPath, pubPEM, 0o644); err != nil {
		b.Fatal(err)
	}
	return privatePath, publicPath
}

func benchKeyProvider(b *testing.B) *KeyProvider {
	b.Helper()
	privatePath, publicPath := writeKeypairTo(b, b.TempDir())
	keys, err := LoadKeyProvider(privatePath, publicPath)
	if err != nil {
		b.Fatal(err)
	}
	return keys
}

// BenchmarkJwtService_IssueAccessToken measures steady-state RS256 signing
// cost, the same hot path internal/oidc's BenchmarkService_GenerateIDToken
// measured for ID token issuance.
func BenchmarkJwtService_IssueAccessToken(b *testing.B) {
	keys := benchKeyProvider(b)
	s := NewJwtService(keys, "https://auth.example.com", "resource-api", time.Hour)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := s.IssueAccessToken(ctx, "user-1", "user1@example.com", "user1", []string{"user"}, "client-1", "profile email"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkJwtService_IssueAndVerify(b *testing.B) {
	keys := benchKeyProvider(b)
	s := NewJwtService(keys, "https://auth.example.com", "resource-api", time.Hour)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tok, _, err := s.IssueAccessToken(ctx, "user-1", "user1@example.com", "user1", []string{"user"}, "client-1", "profile email")
		if err != nil {
			b.Fatal(err)
		}
		if _, err := s.Verify(tok); err != nil {
			b.Fatal(err)
		}
	}
}
