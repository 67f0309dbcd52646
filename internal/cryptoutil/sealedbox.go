// Package cryptoutil seals identity subject data under a key derived from a
// wallet signature. The KDF input is the recovered signer address rather than
// the raw signature, so any valid signature over the key message unlocks the
// same key.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltLength = 16
	keyLength  = 32

	// Iteration count matches the deployed PBKDF2-HMAC-SHA256 parameters.
	kdfIterations = 1_200_000
)

// NewNonce returns a 256-bit random nonce, hex encoded.
func NewNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewSalt returns a fresh random KDF salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches the signer address bytes into an AES-256 key. The
// per-record salt is what scopes the key to a single record.
func DeriveKey(material, salt []byte) []byte {
	return pbkdf2.Key(material, salt, kdfIterations, keyLength, sha256.New)
}

// Seal encrypts plaintext with AES-256-GCM under the derived key. The nonce
// is prepended to the returned ciphertext.
func Seal(plaintext, material, salt []byte) ([]byte, error) {
	block, err := aes.NewCipher(DeriveKey(material, salt))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a Seal output. A wrong key or tampered ciphertext fails the
// GCM authentication check.
func Open(sealed, material, salt []byte) ([]byte, error) {
	block, err := aes.NewCipher(DeriveKey(material, salt))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("sealed payload too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed payload: %w", err)
	}
	return plaintext, nil
}
