// Package token implements RS256 access-token signing and JWKS publication
// over a single stable keypair loaded from disk, folding together the
// mechanics the teacher split across internal/oauth2's DB-backed KeyRepository
// and internal/oidc's in-memory-generated signing key.
package token

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

var (
	ErrNoPEMBlock      = errors.New("no PEM block found")
	ErrNotRSAPrivate   = errors.New("PEM block does not contain an RSA private key")
	ErrNotRSAPublic    = errors.New("PEM block does not contain an RSA public key")
)

// KeyProvider holds the process's single active RS256 signing keypair,
// loaded once at startup from the two PEM files spec.md §6 names as
// persisted state (keys/private.pem, keys/public.pem). There is no
// in-process rotation; replacing the keypair means restarting the process
// with new files, matching the single-active-signing-key Non-goal.
type KeyProvider struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	kid     string
}

// LoadKeyProvider reads and parses the PEM keypair at the given paths, and
// derives a stable kid as the base64url encoding of the first 16 bytes of
// the SHA-256 hash of the modulus, the same construction internal/oidc used
// for its ephemeral key.
func LoadKeyProvider(privatePath, publicPath string) (*KeyProvider, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	priv, err := parsePrivateKey(privPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	pub, err := parsePublicKey(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}

	hash := sha256.Sum256(priv.PublicKey.N.Bytes())
	kid := base64.RawURLEncoding.EncodeToString(hash[:16])

	return &KeyProvider{private: priv, public: pub, kid: kid}, nil
}

func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrNotRSAPrivate
	}
	return key, nil
}

func parsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSAPublic
	}
	return key, nil
}

// KeyID returns the stable key identifier carried in every signed token's
// header and in the published JWKS.
func (p *KeyProvider) KeyID() string { return p.kid }
