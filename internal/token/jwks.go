package token

import (
	"encoding/base64"
	"math/big"
)

// JWK is a single RSA public key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is a JSON Web Key Set document, the shape published at
// /.well-known/jwks.json for resource servers to verify access tokens.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JwksService publishes the public half of the process's signing keypair
// as a JWKS document. There is exactly one key, computed once at process
// start and served from memory for the process lifetime; the absence of
// rotation-in-place is intentional, see KeyProvider.
type JwksService struct {
	keys *KeyProvider
	jwk  JWK
}

// NewJwksService precomputes the JWK for the loaded keypair.
func NewJwksService(keys *KeyProvider) *JwksService {
	pub := keys.public
	return &JwksService{
		keys: keys,
		jwk: JWK{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: keys.KeyID(),
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(bigIntToBytes(pub.E)),
		},
	}
}

// GetJWKS returns the published key set.
func (s *JwksService) GetJWKS() JWKS {
	return JWKS{Keys: []JWK{s.jwk}}
}

func bigIntToBytes(n int) []byte {
	return big.NewInt(int64(n)).Bytes()
}
