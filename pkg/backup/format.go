package backup

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// MagicNumber starts every backup file.
var MagicNumber = [8]byte{'S', 'N', 'I', 'P', '_', 'B', 'K', 'P'}

// FormatVersion is the current backup format version.
const FormatVersion = 1

// maxHeaderLen bounds the header read from an untrusted file.
const maxHeaderLen = 64 * 1024

// EncryptionMode specifies how the backup is encrypted.
type EncryptionMode string

const (
	// EncryptionModePassphrase derives the keys from a passphrase with Argon2id.
	EncryptionModePassphrase EncryptionMode = "passphrase"
	// EncryptionModeKey uses a 32-byte key file.
	EncryptionModeKey EncryptionMode = "key"
)

// KDFParams are the Argon2id parameters of a passphrase backup.
type KDFParams struct {
	Salt        []byte `json:"salt"`
	Memory      uint32 `json:"memory"` // KiB
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// Header is stored in clear text before the encrypted payload. It is
// covered by the HMAC.
type Header struct {
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	EncryptionMode EncryptionMode `json:"encryption_mode"`
	KDFParams      *KDFParams     `json:"kdf_params,omitempty"` // nil for EncryptionModeKey
	SnippetCount   int            `json:"snippet_count"`
	ChecksumAlgo   string         `json:"checksum_algorithm"`
}

// Snippet is one decrypted snippet inside a backup.
type Snippet struct {
	Key      string  `json:"key"`
	Value    string  `json:"value"`
	Shortcut *string `json:"shortcut,omitempty"`
}

// Payload is the encrypted part of a backup.
type Payload struct {
	Snippets []Snippet `json:"snippets"`
}

// WriteHeader writes the magic number, the header length and the header.
func WriteHeader(w io.Writer, header *Header) error {
	if _, err := w.Write(MagicNumber[:]); err != nil {
		return fmt.Errorf("failed to write magic number: %w", err)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header length: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// ReadHeader reads and validates the magic number and header.
func ReadHeader(r io.Reader) (*Header, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, ErrInvalidMagic
	}
	if magic != MagicNumber {
		return nil, ErrInvalidMagic
	}

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return nil, ErrTruncated
	}
	if headerLen > maxHeaderLen {
		return nil, fmt.Errorf("backup: header too large: %d bytes", headerLen)
	}

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, ErrTruncated
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("backup: failed to unmarshal header: %w", err)
	}
	if header.Version < 1 || header.Version > FormatVersion {
		return nil, fmt.Errorf("%w: got %d, max supported %d",
			ErrUnsupportedVersion, header.Version, FormatVersion)
	}
	return &header, nil
}

// EncodePayload encodes the payload to JSON bytes.
func EncodePayload(payload *Payload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// DecodePayload decodes JSON bytes to a payload.
func DecodePayload(data []byte) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("backup: failed to unmarshal payload: %w", err)
	}
	return &payload, nil
}
