// Package store is the snippet store engine: an ordered key-value file whose
// values are protected per user and machine.
//
// Every operation loads the whole file, works on the lines in memory and, if
// it mutates, writes the whole file back through a temp-file rename. Nothing
// is cached between calls, so a Store value only carries the path and its
// collaborators.
package store

import (
	"errors"
	"log/slog"

	"github.com/forest6511/snipctl/internal/fsutil"
	"github.com/forest6511/snipctl/pkg/audit"
	"github.com/forest6511/snipctl/pkg/backup"
	"github.com/forest6511/snipctl/pkg/protect"
	"github.com/forest6511/snipctl/pkg/record"
)

// Errors
var (
	ErrKeyNotFound         = errors.New("store: key not found")
	ErrStoreFileMissing    = errors.New("store: database file does not exist")
	ErrImportFileMissing   = errors.New("store: import file does not exist")
	ErrShortcutsNeedValues = errors.New("store: shortcuts can only be listed together with values")
	ErrInvalidFormat       = errors.New("store: invalid export format")
	ErrInvalidPattern      = errors.New("store: invalid key pattern")
	ErrInsufficientDisk    = fsutil.ErrInsufficientDisk
)

// Clipboard receives values copied by Get.
type Clipboard interface {
	WriteText(text string) error
}

// Launcher opens snippet shortcuts. Failures are reported, never fatal.
type Launcher interface {
	Launch(path string) error
}

// Store is a snippet database bound to one file.
type Store struct {
	path      string
	codec     *record.Codec
	clipboard Clipboard
	launcher  Launcher
	logger    *slog.Logger
	audit     *audit.Logger
	migrated  int
}

// Option configures a Store.
type Option func(*Store)

// WithClipboard sets the clipboard used by Get.
func WithClipboard(c Clipboard) Option {
	return func(s *Store) { s.clipboard = c }
}

// WithLauncher sets the launcher used for shortcuts.
func WithLauncher(l Launcher) Option {
	return func(s *Store) { s.launcher = l }
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithAudit records every operation in the given audit log.
func WithAudit(a *audit.Logger) Option {
	return func(s *Store) { s.audit = a }
}

// New returns a Store for the file at path without touching the file.
func New(path string, p protect.Protector, opts ...Option) *Store {
	s := &Store{
		path:   path,
		codec:  record.NewCodec(p),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns a Store for path after encrypting any legacy plaintext values
// it holds. See Migrate.
func Open(path string, p protect.Protector, opts ...Option) (*Store, error) {
	s := New(path, p, opts...)
	n, err := s.Migrate()
	if err != nil {
		return nil, err
	}
	s.migrated = n
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Migrated returns how many values Open encrypted.
func (s *Store) Migrated() int {
	return s.migrated
}

// auditEvent records op in the audit log, if one is configured. Audit
// failures are logged and never fail the operation.
func (s *Store) auditEvent(op, key string, err error, ctx map[string]string) {
	if s.audit == nil {
		return
	}
	var logErr error
	if err != nil {
		logErr = s.audit.LogError(op, key, errorCode(err), err)
	} else {
		logErr = s.audit.LogSuccess(op, key, ctx)
	}
	if logErr != nil {
		s.logger.Warn("audit log write failed", "op", op, "error", logErr)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return "not_found"
	case errors.Is(err, ErrImportFileMissing):
		return "import_missing"
	case errors.Is(err, record.ErrInvalidKey), errors.Is(err, record.ErrInvalidShortcut):
		return "invalid_input"
	case errors.Is(err, ErrInsufficientDisk):
		return "disk_full"
	case errors.Is(err, backup.ErrIntegrityFailed), errors.Is(err, backup.ErrInvalidMagic),
		errors.Is(err, backup.ErrModeMismatch), errors.Is(err, backup.ErrTruncated):
		return "backup_invalid"
	default:
		return "io_error"
	}
}
