package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/forest6511/snipctl/internal/fsutil"
	"github.com/forest6511/snipctl/pkg/audit"
	"github.com/forest6511/snipctl/pkg/record"
)

// ImportOptions controls Import.
type ImportOptions struct {
	Overwrite bool // replace existing keys instead of skipping them
	DryRun    bool // count only, do not write
}

// ImportResult counts what Import did. Malformed lines are counted on their
// own and never in Added, Replaced or Skipped.
type ImportResult struct {
	Added     int
	Replaced  int
	Skipped   int
	Malformed int
}

// Import reads a plaintext file of key=value[|shortcut] lines and stores each
// entry. Blank lines are ignored. Lines are applied in order, so a key that
// appears twice collides with its own first occurrence.
func (s *Store) Import(path string, opts ImportOptions) (*ImportResult, error) {
	res, err := s.importFile(path, opts)
	ctx := map[string]string{"dry_run": strconv.FormatBool(opts.DryRun)}
	if res != nil {
		ctx["added"] = strconv.Itoa(res.Added)
		ctx["replaced"] = strconv.Itoa(res.Replaced)
		ctx["skipped"] = strconv.Itoa(res.Skipped)
		ctx["malformed"] = strconv.Itoa(res.Malformed)
	}
	s.auditEvent(audit.OpImport, "", err, ctx)
	return res, err
}

func (s *Store) importFile(path string, opts ImportOptions) (*ImportResult, error) {
	text, err := readText(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrImportFileMissing, path)
		}
		return nil, fmt.Errorf("store: failed to read import file: %w", err)
	}

	db, err := s.load()
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	for n, raw := range splitLines(text) {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		in, err := record.ParseLine(raw)
		if err != nil {
			res.Malformed++
			s.logger.Debug("skipping malformed import line", "file", path, "line", n+1, "error", err)
			continue
		}

		// A value that is already our ciphertext is imported as its plaintext.
		rec := record.FromPlain(in)
		rec.Value = s.codec.Classify(in).Text

		if err := s.merge(db, rec, opts, res); err != nil {
			res.Malformed++
			s.logger.Debug("skipping invalid import line", "file", path, "line", n+1, "error", err)
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

// merge adds rec to db, or replaces or skips an existing entry, and counts
// the outcome in res.
func (s *Store) merge(db *database, rec record.Record, opts ImportOptions, res *ImportResult) error {
	line, err := s.codec.Encode(rec)
	if err != nil {
		return err
	}
	idx := db.find(rec.Key)
	switch {
	case idx < 0:
		db.lines = append(db.lines, line)
		res.Added++
	case opts.Overwrite:
		db.lines[idx] = line
		res.Replaced++
	default:
		res.Skipped++
	}
	return nil
}

// Format selects the export output.
type Format string

const (
	// FormatCommands writes a script of snipctl set invocations.
	FormatCommands Format = "commands"
	// FormatPlain writes key=value[|shortcut] lines in clear text.
	FormatPlain Format = "plain"
)

// ParseFormat validates an export format name; empty means FormatCommands.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatCommands:
		return FormatCommands, nil
	case FormatPlain:
		return FormatPlain, nil
	default:
		return "", fmt.Errorf("%w: '%s': must be '%s' or '%s'", ErrInvalidFormat, s, FormatCommands, FormatPlain)
	}
}

// PlainWarning accompanies every plain export.
const PlainWarning = "the exported file is NOT encrypted: every value is stored in clear text"

// ExportOptions controls Export.
type ExportOptions struct {
	Format   Format
	Quote    QuoteStyle // commands format only; empty means QuotePOSIX
	Patterns []string   // empty means every key
	Program  string     // command name used in the script; empty means "snipctl"
}

// ExportResult describes an export.
type ExportResult struct {
	Count   int
	Warning string
	// Lossy lists keys whose value contains '|' or a line break and
	// therefore cannot be read back from a plain export.
	Lossy []string
}

// Export decrypts every selected snippet and writes it to w in the requested
// format.
func (s *Store) Export(w io.Writer, opts ExportOptions) (*ExportResult, error) {
	res, err := s.export(w, opts)
	ctx := map[string]string{"format": string(opts.Format)}
	if res != nil {
		ctx["count"] = strconv.Itoa(res.Count)
	}
	s.auditEvent(audit.OpExport, "", err, ctx)
	return res, err
}

// ExportFile writes the export to path with owner-only permissions. An
// existing file is replaced only with force; symlinks are always refused.
func (s *Store) ExportFile(path string, opts ExportOptions, force bool) (*ExportResult, error) {
	var buf bytes.Buffer
	res, err := s.Export(&buf, opts)
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteSecureFile(path, buf.Bytes(), force); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) export(w io.Writer, opts ExportOptions) (*ExportResult, error) {
	format, err := ParseFormat(string(opts.Format))
	if err != nil {
		return nil, err
	}
	quote, err := ParseQuoteStyle(string(opts.Quote))
	if err != nil {
		return nil, err
	}
	program := opts.Program
	if program == "" {
		program = "snipctl"
	}

	entries, err := s.list(ListOptions{IncludeValues: true, IncludeShortcuts: true, Patterns: opts.Patterns})
	if err != nil {
		return nil, err
	}

	var out string
	res := &ExportResult{Count: len(entries)}
	switch format {
	case FormatPlain:
		out = renderPlain(entries, res)
		res.Warning = PlainWarning
	default:
		out = renderCommands(entries, quote, program)
	}

	if _, err := io.WriteString(w, out); err != nil {
		return nil, fmt.Errorf("store: failed to write export: %w", err)
	}
	return res, nil
}

func renderPlain(entries []Entry, res *ExportResult) string {
	var sb strings.Builder
	for _, e := range entries {
		if strings.ContainsAny(e.Value, "|\r\n") {
			res.Lossy = append(res.Lossy, e.Key)
		}
		sb.WriteString(record.Plain(record.Record{
			Key:         e.Key,
			Value:       e.Value,
			Shortcut:    e.Shortcut,
			HasShortcut: e.HasShortcut,
		}).String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// renderCommands writes one set invocation per snippet. Values go through
// --value= so that a leading '-' is never read as a flag.
func renderCommands(entries []Entry, quote QuoteStyle, program string) string {
	var sb strings.Builder
	if quote == QuotePOSIX {
		sb.WriteString("#!/bin/sh\n")
	}
	sb.WriteString("# Generated by snipctl export\n")
	sb.WriteString("# WARNING: contains plaintext values. DO NOT COMMIT THIS FILE TO VERSION CONTROL\n")

	for _, e := range entries {
		sb.WriteString(program)
		sb.WriteString(" set --key=")
		sb.WriteString(quote.Quote(e.Key))
		sb.WriteString(" --value=")
		sb.WriteString(quote.Quote(e.Value))
		if e.HasShortcut {
			sb.WriteString(" --shortcut=")
			sb.WriteString(quote.Quote(e.Shortcut))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
