package protect

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/forest6511/snipctl/pkg/crypto"
)

const (
	// KeyFileName is the user key file created under the snipctl directory.
	KeyFileName = "protect.key"

	// UserKeyLength is the size of the random user key in bytes.
	UserKeyLength = 32

	keyFileMode = 0600
	keyDirMode  = 0700
	keyInfo     = "snipctl-protect-v1"
)

// blobMagic prefixes every KeyProtector ciphertext.
var blobMagic = []byte{'s', 'p', 1}

// ErrKeyFileCorrupted indicates the user key file has the wrong size.
var ErrKeyFileCorrupted = errors.New("protect: user key file is corrupted")

// KeyProtector is the non-Windows protector: AES-256-GCM under a key derived
// from a random per-user secret, the machine identity and the uid.
type KeyProtector struct {
	key []byte
}

// NewKeyProtector derives the protection key from secret and binds it to
// machineID and uid. Changing any of the three makes existing ciphertext
// unreadable.
func NewKeyProtector(secret []byte, machineID string, uid int) (*KeyProtector, error) {
	info := keyInfo + "|uid=" + strconv.Itoa(uid)
	key, err := crypto.DeriveKey(secret, []byte(machineID), []byte(info))
	if err != nil {
		return nil, fmt.Errorf("protect: failed to derive key: %w", err)
	}
	return &KeyProtector{key: key}, nil
}

// OpenUserKey loads dir/protect.key, creating it with 32 random bytes on
// first use, and returns a protector bound to this machine and user.
func OpenUserKey(dir string) (*KeyProtector, error) {
	secret, err := loadOrCreateUserKey(dir)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(secret)

	machineID, err := machineIdentity()
	if err != nil {
		return nil, err
	}
	return NewKeyProtector(secret, machineID, os.Getuid())
}

// Protect implements Protector.
func (k *KeyProtector) Protect(plaintext []byte) ([]byte, error) {
	blob, err := crypto.Seal(k.key, plaintext)
	if err != nil {
		return nil, err
	}
	return append(bytes.Clone(blobMagic), blob...), nil
}

// Unprotect implements Protector.
func (k *KeyProtector) Unprotect(ciphertext []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, blobMagic) {
		return nil, ErrNotProtected
	}
	return crypto.Open(k.key, ciphertext[len(blobMagic):])
}

// Close wipes the derived key.
func (k *KeyProtector) Close() {
	crypto.SecureWipe(k.key)
}

func loadOrCreateUserKey(dir string) ([]byte, error) {
	path := filepath.Join(dir, KeyFileName)

	secret, err := os.ReadFile(path)
	if err == nil {
		if len(secret) != UserKeyLength {
			return nil, ErrKeyFileCorrupted
		}
		checkKeyFilePermissions(path)
		return secret, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("protect: failed to read user key: %w", err)
	}

	if err := os.MkdirAll(dir, keyDirMode); err != nil {
		return nil, fmt.Errorf("protect: failed to create key directory: %w", err)
	}

	secret = make([]byte, UserKeyLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("protect: failed to generate user key: %w", err)
	}

	// O_EXCL: never clobber a key another process created in the meantime.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFileMode)
	if err != nil {
		if os.IsExist(err) {
			return loadOrCreateUserKey(dir)
		}
		return nil, fmt.Errorf("protect: failed to create user key: %w", err)
	}
	_, writeErr := f.Write(secret)
	closeErr := f.Close()
	if writeErr != nil {
		return nil, fmt.Errorf("protect: failed to write user key: %w", writeErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("protect: failed to close user key: %w", closeErr)
	}
	return secret, nil
}

// checkKeyFilePermissions warns when group/other can read the key.
func checkKeyFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		fmt.Fprintf(os.Stderr, "warning: %s has insecure permissions %04o (expected 0600)\n", KeyFileName, perm)
	}
}
