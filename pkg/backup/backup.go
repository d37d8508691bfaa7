// Package backup reads and writes portable snippet backups.
//
// A snippet database can only be read by the user and machine that wrote
// it. A backup carries the decrypted snippets to another machine, encrypted
// with a passphrase or a key file instead.
//
// Layout:
//
//	magic(8) | header length(4) | header JSON | payload length(4) | payload | HMAC(32)
//
// Security:
//   - A fresh Argon2id salt for every passphrase backup
//   - AES-256-GCM payload encryption
//   - HMAC-SHA256 over header and ciphertext for tamper detection
//   - Key material and plaintext cleared from memory with SecureWipe
package backup

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/forest6511/snipctl/pkg/crypto"
)

// Credentials unlock a backup. KeyFile takes precedence over Password.
type Credentials struct {
	Password []byte
	KeyFile  string
}

// VerifyResult contains the result of a verify operation.
type VerifyResult struct {
	// Valid indicates the backup passed all integrity checks.
	Valid bool
	// Version is the backup format version.
	Version int
	// CreatedAt is when the backup was created.
	CreatedAt time.Time
	// SnippetCount is the number of snippets in the backup.
	SnippetCount int
	// Error is set if verification failed.
	Error string
}

// Write encrypts snippets and writes a complete backup to w.
func Write(w io.Writer, snippets []Snippet, creds Credentials) (*Header, error) {
	header := &Header{
		Version:      FormatVersion,
		CreatedAt:    time.Now().UTC(),
		SnippetCount: len(snippets),
		ChecksumAlgo: "sha256",
	}
	if creds.KeyFile != "" {
		header.EncryptionMode = EncryptionModeKey
	} else {
		params, err := DefaultKDFParams()
		if err != nil {
			return nil, err
		}
		header.EncryptionMode = EncryptionModePassphrase
		header.KDFParams = params
	}

	encKey, macKey, err := creds.keys(header)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	payload, err := EncodePayload(&Payload{Snippets: snippets})
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(payload)

	ciphertext, err := EncryptPayload(payload, encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	// Buffer everything the HMAC covers.
	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ciphertext))); err != nil {
		return nil, fmt.Errorf("failed to write payload length: %w", err)
	}
	buf.Write(ciphertext)

	mac := ComputeHMAC(buf.Bytes(), macKey)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}
	if _, err := w.Write(mac); err != nil {
		return nil, fmt.Errorf("failed to write HMAC: %w", err)
	}
	return header, nil
}

// Read verifies and decrypts a backup.
func Read(r io.Reader, creds Credentials) (*Header, []Snippet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read backup: %w", err)
	}

	reader := bytes.NewReader(data)
	header, err := ReadHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	headerEnd := len(data) - reader.Len()

	var ciphertextLen uint32
	if err := binary.Read(reader, binary.BigEndian, &ciphertextLen); err != nil {
		return nil, nil, ErrTruncated
	}
	if uint64(reader.Len()) < uint64(ciphertextLen)+HMACLength {
		return nil, nil, ErrTruncated
	}
	macStart := headerEnd + 4 + int(ciphertextLen)
	ciphertext := data[headerEnd+4 : macStart]
	storedMAC := data[macStart : macStart+HMACLength]

	encKey, macKey, err := creds.keys(header)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	if !VerifyHMAC(data[:macStart], storedMAC, macKey) {
		return nil, nil, ErrIntegrityFailed
	}

	plaintext, err := DecryptPayload(ciphertext, encKey)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(plaintext)

	payload, err := DecodePayload(plaintext)
	if err != nil {
		return nil, nil, err
	}
	return header, payload.Snippets, nil
}

// Verify checks backup integrity without returning the snippets. Failures
// are reported in the result, not as an error.
func Verify(r io.Reader, creds Credentials) *VerifyResult {
	header, snippets, err := Read(r, creds)
	if err != nil {
		return &VerifyResult{Valid: false, Error: err.Error()}
	}
	return &VerifyResult{
		Valid:        true,
		Version:      header.Version,
		CreatedAt:    header.CreatedAt,
		SnippetCount: len(snippets),
	}
}

// keys returns the encryption and MAC keys for header's encryption mode.
func (c Credentials) keys(header *Header) (encKey, macKey []byte, err error) {
	switch header.EncryptionMode {
	case EncryptionModeKey:
		if c.KeyFile == "" {
			return nil, nil, fmt.Errorf("%w: backup needs a key file", ErrModeMismatch)
		}
		key, err := ReadKeyFile(c.KeyFile)
		if err != nil {
			return nil, nil, err
		}
		defer crypto.SecureWipe(key)
		return splitKeys(key)
	case EncryptionModePassphrase:
		if c.KeyFile != "" {
			return nil, nil, fmt.Errorf("%w: backup needs a passphrase", ErrModeMismatch)
		}
		return DeriveBackupKeys(c.Password, header.KDFParams)
	default:
		return nil, nil, fmt.Errorf("backup: unknown encryption mode %q", header.EncryptionMode)
	}
}
