// Package crypto seals artifacts before they leave the machine. Storage-state
// files carry live bearer tokens, so uploads to a shared bucket are encrypted
// with a per-object key:
// - Object key: derived from the master key and the artifact key using HKDF-SHA256
// - Payload: AES-256-GCM with a random nonce, the artifact key as additional data
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of master and derived keys in bytes (256 bits)
	KeySize = 32

	// NonceSize is the size of the AES-GCM nonce in bytes (96 bits)
	NonceSize = 12

	// Version is the current sealed format version. It is part of the HKDF
	// info, so bumping it rotates every derived key.
	Version = 1

	tagSize = 16
)

// ErrInvalidKey is returned when a master key does not decode to KeySize bytes.
var ErrInvalidKey = errors.New("crypto: master key must be 32 bytes, hex or base64 encoded")

// ParseMasterKey decodes a 32-byte key given as 64 hex characters or as
// standard base64.
func ParseMasterKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if key, err := hex.DecodeString(encoded); err == nil && len(key) == KeySize {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == KeySize {
		return key, nil
	}
	return nil, ErrInvalidKey
}

// DeriveKey derives the key for one artifact from the master key.
// info = "artifact:" + name + ":v" + version
func DeriveKey(masterKey []byte, name string, version int) []byte {
	info := fmt.Sprintf("artifact:%s:v%d", name, version)
	r := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// HKDF-SHA256 can produce 255*32 bytes; 32 never fails.
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return key
}

// Seal encrypts plaintext with AES-256-GCM.
// Output format: nonce (12 bytes) || ciphertext || auth tag (16 bytes)
func Seal(key, plaintext, additionalData []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+tagSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open reverses Seal. It fails if the data was modified or additionalData
// differs from the value used to seal it.
func Open(key, sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < NonceSize+tagSize {
		return nil, fmt.Errorf("sealed data too short: got %d bytes, need at least %d", len(sealed), NonceSize+tagSize)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, sealed[:NonceSize], sealed[NonceSize:], additionalData)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed data: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
