package attestation

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
)

// LoadKeypairFile reads a Solana CLI keypair file (JSON array of 64 bytes).
func LoadKeypairFile(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}
	return ParseKeypairJSON(data)
}

// ParseKeypairJSON parses a JSON array of 64 bytes (secret || public).
func ParseKeypairJSON(data []byte) (ed25519.PrivateKey, error) {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse keypair json: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair must have %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}

	key := make([]byte, ed25519.PrivateKeySize)
	for i, v := range raw {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair byte %d out of range: %d", i, v)
		}
		key[i] = byte(v)
	}
	return checkKeypair(key)
}

// ParseSecretKey decodes a base58 64-byte secret key.
func ParseSecretKey(s string) (ed25519.PrivateKey, error) {
	b, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode base58 secret key: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return checkKeypair(b)
}

// checkKeypair ensures the public half matches the seed.
func checkKeypair(key []byte) (ed25519.PrivateKey, error) {
	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	for i := ed25519.SeedSize; i < ed25519.PrivateKeySize; i++ {
		if derived[i] != key[i] {
			return nil, fmt.Errorf("public key does not match secret seed")
		}
	}
	return derived, nil
}

// GenerateKeypair creates a new random signing key.
func GenerateKeypair() (ed25519.PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return key, nil
}

// WriteKeypairFile writes key in Solana CLI format with 0600 permissions.
func WriteKeypairFile(path string, key ed25519.PrivateKey) error {
	raw := make([]int, len(key))
	for i, b := range key {
		raw[i] = int(b)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal keypair: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create keypair dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keypair file: %w", err)
	}
	return nil
}

// EncodeSecretKey returns the base58 encoding of key.
func EncodeSecretKey(key ed25519.PrivateKey) string {
	return base58.Encode(key)
}

// ParsePublicKey decodes a base58 32-byte public key.
func ParsePublicKey(s string) ([32]byte, error) {
	var out [32]byte
	b, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return out, fmt.Errorf("decode base58 public key: %w", err)
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("public key must be %d bytes, got %d", len(out), len(b))
	}
	copy(out[:], b)
	return out, nil
}
