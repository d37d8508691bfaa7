// Package protect wraps the per-user, per-machine secret protection that
// snipctl uses to encrypt snippet values at rest.
//
// On Windows the Data Protection API (DPAPI) does the work; elsewhere a
// random user key under the snipctl directory is bound to the machine
// identity and the current uid (see KeyProtector). Either way no password
// is involved and the ciphertext is useless on another machine or account.
//
// Values travel through the line format as base64 text. Classify is the
// single place that decides whether a stored payload is ciphertext or a
// legacy plaintext value.
package protect

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrNotProtected indicates the input is not ciphertext this protector can open.
var ErrNotProtected = errors.New("protect: input is not protected data")

// Protector encrypts and decrypts opaque byte strings bound to the current
// user and machine.
type Protector interface {
	Protect(plaintext []byte) ([]byte, error)
	Unprotect(ciphertext []byte) ([]byte, error)
}

// Seal protects plaintext and returns it as base64 text suitable for a
// stored line. Empty input yields empty output, never a ciphertext of "".
func Seal(p Protector, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ciphertext, err := p.Protect([]byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("protect: failed to protect value: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Unseal is the strict inverse of Seal. It returns ErrNotProtected when
// payload is not base64 or does not unprotect.
func Unseal(p Protector, payload string) (string, error) {
	if payload == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrNotProtected
	}
	plaintext, err := p.Unprotect(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotProtected, err)
	}
	return string(plaintext), nil
}

// Kind tags the outcome of Classify.
type Kind int

const (
	// Unencrypted means the payload is a legacy plaintext value.
	Unencrypted Kind = iota
	// Encrypted means the payload unprotected successfully.
	Encrypted
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case Encrypted:
		return "encrypted"
	case Unencrypted:
		return "unencrypted"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of probing a stored payload. Text holds the
// decrypted plaintext for Encrypted and the raw payload for Unencrypted.
type Result struct {
	Kind Kind
	Text string
}

// IsEncrypted reports whether the payload was ciphertext.
func (r Result) IsEncrypted() bool {
	return r.Kind == Encrypted
}

// Classify probes payload. A payload that does not parse as ciphertext is
// not an error: it is reported as Unencrypted with the raw text, which is
// what lets legacy plaintext files migrate transparently. The empty payload
// is Unencrypted("") and Seal maps it back to "".
func Classify(p Protector, payload string) Result {
	plaintext, err := Unseal(p, payload)
	if err != nil || payload == "" {
		return Result{Kind: Unencrypted, Text: payload}
	}
	return Result{Kind: Encrypted, Text: plaintext}
}
