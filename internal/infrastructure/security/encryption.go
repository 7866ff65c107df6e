// Package security provides AES encryption, key derivation, JWT and
// secure random generation utilities.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// vaultSalt is fixed: the master secret, not the salt, is the entropy
// source. Changing it invalidates every stored ciphertext.
var vaultSalt = []byte("leadspring.vault.v1")

const vaultKDFIterations = 64000

var (
	// ErrEmptyKey is returned when no master secret was configured.
	ErrEmptyKey = errors.New("empty encryption key")
	// ErrMalformedCiphertext is returned for undecodable or truncated blobs.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
)

// Vault performs at-rest encryption of provider secrets. The AES key is
// derived once from the configured master secret; there is no key rotation.
type Vault struct {
	key []byte
}

// NewVault derives the vault key from the master secret via PBKDF2-SHA256.
func NewVault(masterSecret string) (*Vault, error) {
	if masterSecret == "" {
		return nil, ErrEmptyKey
	}
	key := pbkdf2.Key([]byte(masterSecret), vaultSalt, vaultKDFIterations, 32, sha256.New)
	return &Vault{key: key}, nil
}

// Encrypt seals plaintext with AES-GCM under a fresh random nonce. The
// nonce is prepended to the ciphertext before base64 encoding so Decrypt
// can recover it. Encrypting the empty string yields the empty string.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. Malformed or tampered input returns an empty
// string plus an error; callers treat that as credential-unavailable.
func (v *Vault) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrMalformedCiphertext
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	return string(plaintext), nil
}
