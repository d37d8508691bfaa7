// Package record converts snippet records to and from the lines of a
// snipctl database file.
//
// A stored line has the shape
//
//	key=payload
//	key=payload|shortcut
//
// where payload is the protected value (or a legacy plaintext value) and
// shortcut is a filesystem path kept in clear text. Lines that do not follow
// this grammar are carried as raw lines so that a rewrite never drops them.
package record

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forest6511/snipctl/pkg/protect"
)

const (
	// KeySeparator separates the key from the payload.
	KeySeparator = '='
	// ShortcutSeparator separates the payload from the optional shortcut.
	ShortcutSeparator = '|'
)

// Errors
var (
	ErrInvalidKey      = errors.New("record: invalid key")
	ErrInvalidShortcut = errors.New("record: invalid shortcut")
	ErrMalformedLine   = errors.New("record: malformed line")
)

// Record is one decoded snippet.
type Record struct {
	Key         string
	Value       string // plaintext
	Shortcut    string
	HasShortcut bool
}

// Line is one line of the database file: either a parsed record line or a
// raw line that is written back verbatim.
type Line struct {
	Key         string
	Payload     string // protected value, or legacy plaintext
	Shortcut    string
	HasShortcut bool

	raw   string
	isRaw bool
}

// RawLine wraps text that is not a record line.
func RawLine(text string) Line {
	return Line{raw: text, isRaw: true}
}

// IsRaw reports whether l was kept verbatim instead of parsed.
func (l Line) IsRaw() bool {
	return l.isRaw
}

// String returns the on-disk form of l, without a line terminator.
func (l Line) String() string {
	if l.isRaw {
		return l.raw
	}
	var sb strings.Builder
	sb.Grow(len(l.Key) + len(l.Payload) + len(l.Shortcut) + 2)
	sb.WriteString(l.Key)
	sb.WriteByte(KeySeparator)
	sb.WriteString(l.Payload)
	if l.HasShortcut {
		sb.WriteByte(ShortcutSeparator)
		sb.WriteString(l.Shortcut)
	}
	return sb.String()
}

// ParseLine parses one line. It splits on the first '=' and then on the
// first '|' of the remainder; the form without a shortcut is accepted as is.
// A line with no '=' or an empty key returns ErrMalformedLine.
func ParseLine(s string) (Line, error) {
	idx := strings.IndexByte(s, KeySeparator)
	if idx < 0 {
		return Line{}, fmt.Errorf("%w: missing '%c'", ErrMalformedLine, KeySeparator)
	}
	if idx == 0 {
		return Line{}, fmt.Errorf("%w: empty key", ErrMalformedLine)
	}

	l := Line{Key: s[:idx]}
	rest := s[idx+1:]
	if j := strings.IndexByte(rest, ShortcutSeparator); j >= 0 {
		l.Payload = rest[:j]
		l.Shortcut = rest[j+1:]
		l.HasShortcut = true
	} else {
		l.Payload = rest
	}
	return l, nil
}

// ParseOrRaw parses s, falling back to a raw line when it is malformed.
func ParseOrRaw(s string) Line {
	l, err := ParseLine(s)
	if err != nil {
		return RawLine(s)
	}
	return l
}

// ValidateKey checks that key can be stored on a single line.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	if i := strings.IndexAny(key, "=\r\n"); i >= 0 {
		return fmt.Errorf("%w: %q is not allowed in a key", ErrInvalidKey, key[i])
	}
	return nil
}

// ValidateShortcut checks that shortcut does not break the line grammar.
func ValidateShortcut(shortcut string) error {
	if i := strings.IndexAny(shortcut, "|\r\n"); i >= 0 {
		return fmt.Errorf("%w: %q is not allowed in a shortcut", ErrInvalidShortcut, shortcut[i])
	}
	return nil
}

// Codec encodes records with a Protector.
type Codec struct {
	p protect.Protector
}

// NewCodec returns a Codec protecting values with p.
func NewCodec(p protect.Protector) *Codec {
	return &Codec{p: p}
}

// Encode protects r.Value and returns the stored line for r.
func (c *Codec) Encode(r Record) (Line, error) {
	if err := ValidateKey(r.Key); err != nil {
		return Line{}, err
	}
	if r.HasShortcut {
		if err := ValidateShortcut(r.Shortcut); err != nil {
			return Line{}, err
		}
	}

	payload, err := protect.Seal(c.p, r.Value)
	if err != nil {
		return Line{}, err
	}
	return Line{
		Key:         r.Key,
		Payload:     payload,
		Shortcut:    r.Shortcut,
		HasShortcut: r.HasShortcut,
	}, nil
}

// SealPayload treats the payload of l as plaintext and returns l with the
// payload protected. Key and shortcut are kept as they are.
func (c *Codec) SealPayload(l Line) (Line, error) {
	payload, err := protect.Seal(c.p, l.Payload)
	if err != nil {
		return Line{}, err
	}
	l.Payload = payload
	return l, nil
}

// Classify probes the payload of l. See protect.Classify.
func (c *Codec) Classify(l Line) protect.Result {
	return protect.Classify(c.p, l.Payload)
}

// Decode returns the record stored in l. It never fails: a payload that is
// not ciphertext is returned as the plaintext value.
func (c *Codec) Decode(l Line) Record {
	return Record{
		Key:         l.Key,
		Value:       c.Classify(l).Text,
		Shortcut:    l.Shortcut,
		HasShortcut: l.HasShortcut,
	}
}

// Plain returns the unprotected line form of r, as used by import files and
// plain exports.
func Plain(r Record) Line {
	return Line{
		Key:         r.Key,
		Payload:     r.Value,
		Shortcut:    r.Shortcut,
		HasShortcut: r.HasShortcut,
	}
}

// FromPlain reads l as an unprotected line.
func FromPlain(l Line) Record {
	return Record{
		Key:         l.Key,
		Value:       l.Payload,
		Shortcut:    l.Shortcut,
		HasShortcut: l.HasShortcut,
	}
}
