package store

import (
	"fmt"
	"io"
	"strconv"

	"github.com/forest6511/snipctl/pkg/audit"
	"github.com/forest6511/snipctl/pkg/backup"
	"github.com/forest6511/snipctl/pkg/record"
)

// Backup decrypts every snippet and writes them to w as a backup encrypted
// with creds. Raw lines are not carried over.
func (s *Store) Backup(w io.Writer, creds backup.Credentials) (*backup.Header, error) {
	header, err := s.backup(w, creds)
	ctx := map[string]string{}
	if header != nil {
		ctx["count"] = strconv.Itoa(header.SnippetCount)
		ctx["mode"] = string(header.EncryptionMode)
	}
	s.auditEvent(audit.OpBackup, "", err, ctx)
	return header, err
}

func (s *Store) backup(w io.Writer, creds backup.Credentials) (*backup.Header, error) {
	entries, err := s.list(ListOptions{IncludeValues: true, IncludeShortcuts: true})
	if err != nil {
		return nil, err
	}

	snippets := make([]backup.Snippet, 0, len(entries))
	for _, e := range entries {
		sn := backup.Snippet{Key: e.Key, Value: e.Value}
		if e.HasShortcut {
			shortcut := e.Shortcut
			sn.Shortcut = &shortcut
		}
		snippets = append(snippets, sn)
	}

	header, err := backup.Write(w, snippets, creds)
	if err != nil {
		return nil, fmt.Errorf("store: failed to write backup: %w", err)
	}
	return header, nil
}

// Restore reads a backup and merges its snippets into the store with the
// same rules as Import. A backup that fails verification changes nothing.
func (s *Store) Restore(r io.Reader, creds backup.Credentials, opts ImportOptions) (*ImportResult, error) {
	res, err := s.restore(r, creds, opts)
	ctx := map[string]string{"dry_run": strconv.FormatBool(opts.DryRun)}
	if res != nil {
		ctx["added"] = strconv.Itoa(res.Added)
		ctx["replaced"] = strconv.Itoa(res.Replaced)
		ctx["skipped"] = strconv.Itoa(res.Skipped)
	}
	s.auditEvent(audit.OpRestore, "", err, ctx)
	return res, err
}

func (s *Store) restore(r io.Reader, creds backup.Credentials, opts ImportOptions) (*ImportResult, error) {
	_, snippets, err := backup.Read(r, creds)
	if err != nil {
		return nil, err
	}

	db, err := s.load()
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	for _, sn := range snippets {
		rec := record.Record{Key: sn.Key, Value: sn.Value}
		if sn.Shortcut != nil && *sn.Shortcut != "" {
			rec.Shortcut = *sn.Shortcut
			rec.HasShortcut = true
		}
		if err := s.merge(db, rec, opts, res); err != nil {
			res.Malformed++
			s.logger.Debug("skipping invalid backup entry", "error", err)
		}
	}

	if opts.DryRun || res.Added+res.Replaced == 0 {
		return res, nil
	}
	if err := s.persist(db); err != nil {
		return nil, err
	}
	return res, nil
}
