// Package keystore generates signing identities and persists them in a dotenv file.
package keystore

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// Generate creates a fresh ed25519 identity.
func Generate() (solana.PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return key, nil
}

// Encode renders the 64 private key bytes as a JSON array, the format solana-keygen writes.
func Encode(key solana.PrivateKey) string {
	vals := make([]int, len(key))
	for i, b := range key {
		vals[i] = int(b)
	}
	out, _ := json.Marshal(vals)
	return string(out)
}

// Decode parses a JSON byte array back into a private key and checks that the
// embedded public half matches the seed.
func Decode(s string) (solana.PrivateKey, error) {
	var vals []int
	if err := json.Unmarshal([]byte(s), &vals); err != nil {
		return nil, fmt.Errorf("parse keypair json: %w", err)
	}
	if len(vals) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid keypair length %d, want %d", len(vals), ed25519.PrivateKeySize)
	}
	raw := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("invalid keypair byte %d at index %d", v, i)
		}
		raw[i] = byte(v)
	}
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, errors.New("invalid keypair: public key does not match secret")
	}
	return solana.PrivateKey(raw), nil
}
