package backup

import "errors"

// Backup/Restore errors
var (
	// ErrInvalidMagic indicates the file is not a snipctl backup.
	ErrInvalidMagic = errors.New("backup: invalid file, magic number mismatch")

	// ErrUnsupportedVersion indicates the backup format version is not supported.
	ErrUnsupportedVersion = errors.New("backup: unsupported format version")

	// ErrTruncated indicates the file ends before the HMAC.
	ErrTruncated = errors.New("backup: file truncated")

	// ErrIntegrityFailed indicates the HMAC verification failed.
	ErrIntegrityFailed = errors.New("backup: integrity check failed, wrong passphrase or modified file")

	// ErrDecryptionFailed indicates the payload could not be decrypted.
	ErrDecryptionFailed = errors.New("backup: decryption failed")

	// ErrInvalidKeyFile indicates the key file is invalid or wrong size.
	ErrInvalidKeyFile = errors.New("backup: invalid key file, must be exactly 32 bytes")

	// ErrEmptyPassword indicates an empty passphrase was provided.
	ErrEmptyPassword = errors.New("backup: passphrase cannot be empty")

	// ErrModeMismatch indicates a key file was given for a passphrase
	// backup or the other way around.
	ErrModeMismatch = errors.New("backup: encryption mode does not match the given credentials")
)
