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

// Command keygen generates the RS256 signing keypair the server loads at
// startup (internal/token.LoadKeyProvider). It refuses to overwrite an
// existing keypair, since replacing it invalidates every access token
// and JWKS consumer that trusted the old key.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

const keyBits = 2048

func main() {
	dir := flag.String("dir", "keys", "directory to write private.pem and public.pem into")
	flag.Parse()

	privPath := filepath.Join(*dir, "private.pem")
	pubPath := filepath.Join(*dir, "public.pem")

	if _, err := os.Stat(privPath); err == nil {
		fmt.Printf("refusing to overwrite existing key at %s\n", privPath)
		os.Exit(1)
	}

	if err := os.MkdirAll(*dir, 0o700); err != nil {
		fmt.Printf("failed to create %s: %v\n", *dir, err)
		os.Exit(1)
	}

	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		fmt.Printf("failed to generate key: %v\n", err)
		os.Exit(1)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(key)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		fmt.Printf("failed to write %s: %v\n", privPath, err)
		os.Exit(1)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		fmt.Printf("failed to marshal public key: %v\n", err)
		os.Exit(1)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		fmt.Printf("failed to write %s: %v\n", pubPath, err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s and %s\n", privPath, pubPath)
}
