package backup

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"

	"github.com/forest6511/snipctl/pkg/crypto"
)

const (
	// SaltLength is the length of the backup salt in bytes.
	SaltLength = 32

	// HMACLength is the length of the HMAC-SHA256 in bytes.
	HMACLength = 32

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = crypto.KeyLength
)

// Argon2id parameters following OWASP recommendations.
const (
	Argon2Memory  = 64 * 1024 // KiB
	Argon2Time    = 3
	Argon2Threads = 4
)

// HKDF info strings for key derivation.
const (
	hkdfInfoEncryption = "snipctl-backup-encryption"
	hkdfInfoMAC        = "snipctl-backup-mac"
)

// GenerateSalt generates a cryptographically secure random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DefaultKDFParams returns fresh Argon2id parameters with a new salt.
func DefaultKDFParams() (*KDFParams, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	return &KDFParams{
		Salt:        salt,
		Memory:      Argon2Memory,
		Iterations:  Argon2Time,
		Parallelism: Argon2Threads,
	}, nil
}

// DeriveBackupKeys stretches password with Argon2id and splits the result
// into an encryption key and a MAC key.
func DeriveBackupKeys(password []byte, params *KDFParams) (encKey, macKey []byte, err error) {
	if len(password) == 0 {
		return nil, nil, ErrEmptyPassword
	}
	if params == nil || len(params.Salt) == 0 || params.Iterations == 0 || params.Memory == 0 || params.Parallelism == 0 {
		return nil, nil, errors.New("backup: invalid key derivation parameters")
	}

	masterKey := argon2.IDKey(password, params.Salt, params.Iterations, params.Memory, params.Parallelism, KeyLength)
	defer crypto.SecureWipe(masterKey)

	return splitKeys(masterKey)
}

// splitKeys derives separate encryption and MAC keys from one secret.
func splitKeys(secret []byte) (encKey, macKey []byte, err error) {
	encKey, err = crypto.DeriveKey(secret, nil, []byte(hkdfInfoEncryption))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	macKey, err = crypto.DeriveKey(secret, nil, []byte(hkdfInfoMAC))
	if err != nil {
		crypto.SecureWipe(encKey)
		return nil, nil, fmt.Errorf("failed to derive MAC key: %w", err)
	}
	return encKey, macKey, nil
}

// EncryptPayload encrypts the payload with AES-256-GCM.
func EncryptPayload(plaintext, key []byte) ([]byte, error) {
	ciphertext, err := crypto.Seal(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}
	return ciphertext, nil
}

// DecryptPayload decrypts a payload written by EncryptPayload.
func DecryptPayload(data, key []byte) ([]byte, error) {
	plaintext, err := crypto.Open(key, data)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// ComputeHMAC computes HMAC-SHA256 over the given data.
func ComputeHMAC(data, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// VerifyHMAC verifies the HMAC-SHA256 of the given data.
func VerifyHMAC(data, expectedMAC, key []byte) bool {
	return hmac.Equal(ComputeHMAC(data, key), expectedMAC)
}

// ReadKeyFile reads a 32-byte key from a file.
func ReadKeyFile(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(key) != KeyLength {
		crypto.SecureWipe(key)
		return nil, ErrInvalidKeyFile
	}
	return key, nil
}

// GenerateKeyFile writes a new random key to path with mode 0600. An
// existing file is never replaced.
func GenerateKeyFile(path string) error {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	defer crypto.SecureWipe(key)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return f.Close()
}
