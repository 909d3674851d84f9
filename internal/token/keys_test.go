package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTestKeypair generates a fresh RSA key, writes it as a PKCS8 private /
// PKIX public PEM pair under t.TempDir(), and returns the two paths.
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

func TestLoadKeyProvider_DerivesStableKid(t *testing.T) {
	privatePath, publicPath := writeTestKeypair(t)

	kp1, err := LoadKeyProvider(privatePath, publicPath)
	require.NoError(t, err)

	kp2, err := LoadKeyProvider(privatePath, publicPath)
	require.NoError(t, err)

	require.Equal(t, kp1.KeyID(), kp2.KeyID(), "reloading the same keypair must yield the same kid")
	require.NotEmpty(t, kp1.KeyID())
}

func TestLoadKeyProvider_RejectsMissingFile(t *testing.T) {
	_, publicPath := writeTestKeypair(t)
	_, err := LoadKeyProvider("/nonexistent/private.pem", publicPath)
	require.Error(t, err)
}
