package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/forest6511/snipctl/internal/fsutil"
	"github.com/forest6511/snipctl/pkg/record"
)

// database is the in-memory image of the file for one operation.
type database struct {
	lines  []record.Line
	exists bool
}

// find returns the index of the record line for key, or -1.
func (db *database) find(key string) int {
	for i, l := range db.lines {
		if !l.IsRaw() && l.Key == key {
			return i
		}
	}
	return -1
}

// removeKey drops every record line for key at or after index from and
// returns how many were dropped. A file edited by hand may repeat a key.
func (db *database) removeKey(key string, from int) int {
	kept := db.lines[:from]
	n := 0
	for _, l := range db.lines[from:] {
		if !l.IsRaw() && l.Key == key {
			n++
			continue
		}
		kept = append(kept, l)
	}
	db.lines = kept
	return n
}

// keys returns the record keys in file order.
func (db *database) keys() []string {
	keys := make([]string, 0, len(db.lines))
	for _, l := range db.lines {
		if !l.IsRaw() {
			keys = append(keys, l.Key)
		}
	}
	return keys
}

func (s *Store) load() (*database, error) {
	text, err := readText(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &database{}, nil
		}
		return nil, fmt.Errorf("store: failed to read database: %w", err)
	}

	db := &database{exists: true}
	for _, line := range splitLines(text) {
		if line == "" {
			continue
		}
		l := record.ParseOrRaw(line)
		if l.IsRaw() {
			s.logger.Debug("keeping unparsable line verbatim", "path", s.path)
		}
		db.lines = append(db.lines, l)
	}
	return db, nil
}

func (s *Store) persist(db *database) error {
	var sb strings.Builder
	for _, l := range db.lines {
		sb.WriteString(l.String())
		sb.WriteByte('\n')
	}
	data := []byte(sb.String())

	target, err := writeTarget(s.path)
	if err != nil {
		return fmt.Errorf("store: failed to resolve database path: %w", err)
	}
	warn := func(format string, args ...any) {
		s.logger.Warn(fmt.Sprintf(format, args...), "path", target)
	}
	if err := fsutil.CheckDiskSpaceForWrite(target, len(data), warn); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := fsutil.WriteAtomic(target, data); err != nil {
		return fmt.Errorf("store: failed to write database: %w", err)
	}
	db.exists = true
	return nil
}

// writeTarget follows a symlinked database path to the file it names, so the
// rename replaces the target and the link itself survives. A path that does
// not exist yet is used as given.
func writeTarget(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if os.IsNotExist(err) {
		return path, nil
	}
	return "", err
}

// readText reads a text file written by any editor: a UTF-8 or UTF-16 byte
// order mark selects the decoding and is stripped; no mark means UTF-8.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return string(decoded), nil
}

// splitLines splits on '\n' and drops a trailing '\r' from each line.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
