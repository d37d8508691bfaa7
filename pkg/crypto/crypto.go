// Package crypto provides the symmetric primitives behind snipctl's
// user-key protector and audit chain.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption, nonce prepended to the ciphertext
//   - HKDF-SHA256 key derivation from high-entropy key material
//   - Secure memory wiping for key material
//
// # Example Usage
//
//	key, err := crypto.DeriveKey(secret, machineID, []byte("snipctl-protect-v1"))
//
//	blob, err := crypto.Seal(key, []byte("CH132154646"))
//	plain, err := crypto.Open(key, blob)
//
//	crypto.SecureWipe(key)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// TagLength is the GCM authentication tag length in bytes.
	TagLength = 16
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the blob cannot hold a nonce and a tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

	// ErrEmptyKeyMaterial indicates DeriveKey was called without a secret.
	ErrEmptyKeyMaterial = errors.New("crypto: empty key material")
)

// DeriveKey derives a 256-bit key from secret using HKDF-SHA256.
//
// secret must already carry full entropy (a random key file, a DEK); HKDF
// is not a password hash. salt and info bind the derived key to a context
// such as a machine identity or a purpose label.
func DeriveKey(secret, salt, info []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptyKeyMaterial
	}
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), key); err != nil {
		return nil, fmt.Errorf("crypto: failed to derive key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with AES-256-GCM and returns nonce || ciphertext || tag.
// A fresh random nonce is generated for every call.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceLength, NonceLength+len(plaintext)+TagLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. Any tampering, truncation or wrong key yields
// ErrCiphertextTooShort or ErrDecryptionFailed.
func Open(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < NonceLength+gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, blob[:NonceLength], blob[NonceLength:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive keeps b "in use" after the loop so the stores survive.
	runtime.KeepAlive(b)
}
