package store

import (
	"fmt"
	"strconv"

	"github.com/forest6511/snipctl/internal/cli"
	"github.com/forest6511/snipctl/pkg/audit"
	"github.com/forest6511/snipctl/pkg/record"
)

// GetOptions controls Get.
type GetOptions struct {
	NoCopy bool // do not touch the clipboard (and so never launch)
	Show   bool // return the plaintext value
}

// GetResult describes what Get did.
type GetResult struct {
	Key         string
	Value       string // set only with Show
	Copied      bool
	Shortcut    string
	HasShortcut bool
	Launched    bool
	LaunchErr   error
	Message     string
}

// Get looks up key. Unless NoCopy is set the value is copied to the
// clipboard and, after a successful copy, the snippet's shortcut is
// launched. Launch failures end up in LaunchErr and are not returned.
func (s *Store) Get(key string, opts GetOptions) (*GetResult, error) {
	res, err := s.get(key, opts)
	ctx := map[string]string{}
	if res != nil {
		ctx["copied"] = strconv.FormatBool(res.Copied)
		ctx["launched"] = strconv.FormatBool(res.Launched)
	}
	s.auditEvent(audit.OpGet, key, err, ctx)
	return res, err
}

func (s *Store) get(key string, opts GetOptions) (*GetResult, error) {
	db, err := s.load()
	if err != nil {
		return nil, err
	}
	if !db.exists {
		return nil, fmt.Errorf("%w: %w: %s", ErrKeyNotFound, ErrStoreFileMissing, s.path)
	}
	idx := db.find(key)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	rec := s.codec.Decode(db.lines[idx])
	res := &GetResult{
		Key:         key,
		Shortcut:    rec.Shortcut,
		HasShortcut: rec.HasShortcut && rec.Shortcut != "",
	}
	if opts.Show {
		res.Value = rec.Value
	}

	if opts.NoCopy {
		res.Message = fmt.Sprintf("Snippet '%s' found (not copied)", key)
		return res, nil
	}

	if s.clipboard == nil {
		return nil, fmt.Errorf("store: no clipboard configured")
	}
	if err := s.clipboard.WriteText(rec.Value); err != nil {
		return nil, fmt.Errorf("store: failed to copy '%s' to clipboard: %w", key, err)
	}
	res.Copied = true
	res.Message = fmt.Sprintf("Snippet '%s' copied to clipboard", key)

	if res.HasShortcut && s.launcher != nil {
		if err := s.launcher.Launch(rec.Shortcut); err != nil {
			res.LaunchErr = err
			s.logger.Warn("failed to launch shortcut", "key", key, "shortcut", rec.Shortcut, "error", err)
		} else {
			res.Launched = true
		}
	}
	return res, nil
}

// SetOptions controls Set.
type SetOptions struct {
	// Shortcut is stored in clear next to the value; empty means none.
	Shortcut string
}

// SetResult describes what Set did.
type SetResult struct {
	Replaced bool // key existed and its line was replaced in place
}

// Set stores value under key, replacing an existing line in place or
// appending a new one. The value is encrypted on every call, and the whole
// line is replaced, so a previous shortcut is dropped unless given again.
// The database file and its directory are created when missing.
func (s *Store) Set(key, value string, opts SetOptions) (*SetResult, error) {
	res, err := s.set(key, value, opts)
	s.auditEvent(audit.OpSet, key, err, nil)
	return res, err
}

func (s *Store) set(key, value string, opts SetOptions) (*SetResult, error) {
	line, err := s.codec.Encode(record.Record{
		Key:         key,
		Value:       value,
		Shortcut:    opts.Shortcut,
		HasShortcut: opts.Shortcut != "",
	})
	if err != nil {
		return nil, err
	}

	db, err := s.load()
	if err != nil {
		return nil, err
	}

	res := &SetResult{}
	if idx := db.find(key); idx >= 0 {
		db.lines[idx] = line
		if n := db.removeKey(key, idx+1); n > 0 {
			s.logger.Debug("dropped repeated key lines", "key", key, "count", n)
		}
		res.Replaced = true
	} else {
		db.lines = append(db.lines, line)
	}

	if err := s.persist(db); err != nil {
		return nil, err
	}
	s.logger.Debug("snippet stored", "key", key, "replaced", res.Replaced)
	return res, nil
}

// Remove deletes key. Confirmation is the caller's concern.
func (s *Store) Remove(key string) error {
	err := s.remove(key)
	s.auditEvent(audit.OpRemove, key, err, nil)
	return err
}

func (s *Store) remove(key string) error {
	db, err := s.load()
	if err != nil {
		return err
	}
	if !db.exists {
		return fmt.Errorf("%w: %w: %s", ErrKeyNotFound, ErrStoreFileMissing, s.path)
	}
	idx := db.find(key)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	db.removeKey(key, idx)
	return s.persist(db)
}

// Exists reports whether key is stored, without decrypting anything.
func (s *Store) Exists(key string) (bool, error) {
	db, err := s.load()
	if err != nil {
		return false, err
	}
	found := db.find(key) >= 0
	s.auditEvent(audit.OpExists, key, nil, map[string]string{"found": strconv.FormatBool(found)})
	return found, nil
}

// Keys returns the stored keys in file order.
func (s *Store) Keys() ([]string, error) {
	db, err := s.load()
	if err != nil {
		return nil, err
	}
	return db.keys(), nil
}

// ListOptions controls List.
type ListOptions struct {
	IncludeValues    bool
	IncludeShortcuts bool // requires IncludeValues
	// Patterns restricts the listing to keys matching any glob; empty
	// means all keys.
	Patterns []string
}

// Entry is one listed snippet.
type Entry struct {
	Key         string
	Value       string
	Shortcut    string
	HasShortcut bool
}

// List returns the stored snippets in file order. A missing or empty store
// yields an empty slice.
func (s *Store) List(opts ListOptions) ([]Entry, error) {
	entries, err := s.list(opts)
	s.auditEvent(audit.OpList, "", err, map[string]string{
		"count":  strconv.Itoa(len(entries)),
		"values": strconv.FormatBool(opts.IncludeValues),
	})
	return entries, err
}

func (s *Store) list(opts ListOptions) ([]Entry, error) {
	if opts.IncludeShortcuts && !opts.IncludeValues {
		return nil, ErrShortcutsNeedValues
	}
	if err := validatePatterns(opts.Patterns); err != nil {
		return nil, err
	}

	db, err := s.load()
	if err != nil {
		return nil, err
	}

	entries := []Entry{}
	for _, l := range db.lines {
		if l.IsRaw() || !selected(opts.Patterns, l.Key) {
			continue
		}
		e := Entry{Key: l.Key}
		if opts.IncludeValues {
			e.Value = s.codec.Decode(l).Value
		}
		if opts.IncludeShortcuts && l.HasShortcut && l.Shortcut != "" {
			e.Shortcut = l.Shortcut
			e.HasShortcut = true
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if err := cli.ValidatePattern(p); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
	}
	return nil
}

func selected(patterns []string, key string) bool {
	return len(patterns) == 0 || cli.MatchAny(patterns, key)
}
