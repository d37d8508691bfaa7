// Package audit records snippet store operations in an append-only JSONL log
// whose records are chained with HMAC-SHA256 so that edits, deletions and
// reordering can be detected.
//
// Key names are never written in clear: each event carries an HMAC of the
// key. The HMAC key is derived with HKDF from a random secret that is kept in
// the log directory, sealed by the same protector that guards snippet values.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/forest6511/snipctl/internal/fsutil"
	"github.com/forest6511/snipctl/pkg/protect"
)

const (
	// DirName is the audit directory inside the snipctl directory.
	DirName = "audit"

	keyFileName   = "audit.key"
	stateFileName = "audit.meta"
	secretLength  = 32
	hmacInfo      = "snipctl-audit-v1"
	genesis       = "genesis"
	schemaVersion = 1
)

// Operation types
const (
	OpGet       = "snippet.get"
	OpSet       = "snippet.set"
	OpRemove    = "snippet.remove"
	OpList      = "snippet.list"
	OpImport    = "snippet.import"
	OpExport    = "snippet.export"
	OpMigrate   = "snippet.migrate"
	OpExists    = "snippet.exists"
	OpGetMasked = "snippet.get_masked"
	OpCopy      = "snippet.copy"
	OpBackup    = "snippet.backup"
	OpRestore   = "snippet.restore"
)

// Sources
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
)

// Results
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// Errors
var (
	ErrKeyNotSet    = errors.New("audit: HMAC key not set")
	ErrKeyCorrupted = errors.New("audit: key file is corrupted")
)

// Event is one audit record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339, nanosecond precision

	Operation string `json:"op"`
	KeyHMAC   string `json:"key,omitempty"`

	Actor Actor `json:"actor"`

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Context map[string]string `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// Actor identifies the process that performed the operation.
type Actor struct {
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
	PID       int    `json:"pid"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends chained events to monthly files in its directory.
type Logger struct {
	path      string
	source    string
	sessionID string

	mu       sync.Mutex
	hmacKey  []byte
	sequence int64
	prevHash string
}

// NewLogger creates a logger writing to dir on behalf of source. The logger
// cannot write until a key is set with SetKey or Unlock.
func NewLogger(dir, source string) *Logger {
	return &Logger{
		path:      dir,
		source:    source,
		sessionID: randomHex(16),
		prevHash:  genesis,
	}
}

// Path returns the audit log directory path
func (l *Logger) Path() string {
	return l.path
}

// SetKey derives the HMAC key from secret and loads the chain state.
func (l *Logger) SetKey(secret []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := make([]byte, sha256.Size)
	if _, err := hkdf.New(sha256.New, secret, nil, []byte(hmacInfo)).Read(key); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.hmacKey = key

	if err := l.loadChainState(); err != nil {
		// First run, or the state file is unreadable; Verify reports gaps.
		l.sequence = 0
		l.prevHash = genesis
	}
	return nil
}

// Unlock loads the sealed audit secret from the log directory, creating it on
// first use, and sets the HMAC key from it.
func (l *Logger) Unlock(p protect.Protector) error {
	secret, err := l.loadOrCreateSecret(p)
	if err != nil {
		return err
	}
	return l.SetKey(secret)
}

func (l *Logger) loadOrCreateSecret(p protect.Protector) ([]byte, error) {
	keyPath := filepath.Join(l.path, keyFileName)

	data, err := os.ReadFile(keyPath)
	if err == nil {
		secret, err := protect.Unseal(p, strings.TrimSpace(string(data)))
		if err != nil || len(secret) != secretLength {
			return nil, ErrKeyCorrupted
		}
		return []byte(secret), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("audit: failed to read key file: %w", err)
	}

	secret := make([]byte, secretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("audit: failed to generate key: %w", err)
	}
	sealed, err := protect.Seal(p, string(secret))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to seal key: %w", err)
	}
	if err := fsutil.WriteAtomic(keyPath, []byte(sealed+"\n")); err != nil {
		return nil, fmt.Errorf("audit: failed to write key file: %w", err)
	}
	return secret, nil
}

// Log records an event. key may be empty for store-wide operations.
func (l *Logger) Log(op, result, key string, errInfo *ErrorInfo, ctx map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrKeyNotSet
	}
	if err := os.MkdirAll(l.path, fsutil.DirMode); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := fsutil.CheckDiskSpaceForWrite(l.path, 0, nil); err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	// The MCP server and the CLI append to the same chain.
	if err := l.loadChainState(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("audit: failed to read chain state: %w", err)
	}

	now := time.Now().UTC()
	event := Event{
		Version:   schemaVersion,
		ID:        newEventID(now),
		Timestamp: now.Format(time.RFC3339Nano),
		Operation: op,
		Actor: Actor{
			Source:    l.source,
			SessionID: l.sessionID,
			PID:       os.Getpid(),
		},
		Result:  result,
		Error:   errInfo,
		Context: ctx,
	}
	if key != "" {
		event.KeyHMAC = l.KeyHMAC(key)
	}

	event.Chain.Sequence = l.sequence + 1
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.sign(&event)

	if err := l.appendEvent(&event, now); err != nil {
		return err
	}
	l.sequence = event.Chain.Sequence
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations
func (l *Logger) LogSuccess(op, key string, ctx map[string]string) error {
	return l.Log(op, ResultSuccess, key, nil, ctx)
}

// LogError is a convenience method for failed operations
func (l *Logger) LogError(op, key, code string, err error) error {
	return l.Log(op, ResultError, key, &ErrorInfo{Code: code, Message: err.Error()}, nil)
}

// LogDenied is a convenience method for denied operations
func (l *Logger) LogDenied(op, key, reason string) error {
	return l.Log(op, ResultDenied, key, nil, map[string]string{"reason": reason})
}

// KeyHMAC returns the hex HMAC under which key appears in the log.
func (l *Logger) KeyHMAC(key string) string {
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// sign computes the chain HMAC over every field except the HMAC itself.
// Context keys are sorted so the result is deterministic.
func (l *Logger) sign(e *Event) string {
	var b strings.Builder
	field := func(s string) {
		b.WriteString(strconv.Quote(s))
		b.WriteByte('|')
	}

	field(strconv.Itoa(e.Version))
	field(e.ID)
	field(e.Timestamp)
	field(e.Operation)
	field(e.KeyHMAC)
	field(e.Actor.Source)
	field(e.Actor.SessionID)
	field(strconv.Itoa(e.Actor.PID))
	field(e.Result)
	if e.Error != nil {
		field(e.Error.Code)
		field(e.Error.Message)
	} else {
		field("")
		field("")
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field(k + "=" + e.Context[k])
	}
	field(strconv.FormatInt(e.Chain.Sequence, 10))
	field(e.Chain.PrevHash)

	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func (l *Logger) appendEvent(e *Event, now time.Time) error {
	name := filepath.Join(l.path, now.Format("2006-01")+".jsonl")
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fsutil.FileMode)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, stateFileName))
	if err != nil {
		return err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := fsutil.WriteAtomic(filepath.Join(l.path, stateFileName), data); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// Verify walks every log file in order and checks sequence numbers, chain
// links and record HMACs.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrKeyNotSet
	}

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	prev := genesis
	var seq int64 = 1
	for i := range events {
		e := &events[i]
		result.RecordsTotal++
		ok := true

		if e.Chain.Sequence != seq {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d", e.ID, seq, e.Chain.Sequence))
		}
		if e.Chain.PrevHash != prev {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s", e.ID))
		}
		if !hmac.Equal([]byte(e.Chain.HMAC), []byte(l.sign(e))) {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", e.ID))
		}

		if ok {
			result.RecordsVerified++
		} else {
			result.Valid = false
		}
		prev = e.Chain.HMAC
		seq = e.Chain.Sequence + 1
	}
	return result, nil
}

// ListEvents returns the most recent events, oldest first.
// limit: maximum number of events to return (0 = all)
// since: only return events after this time (zero = no filter)
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	if !since.IsZero() {
		filtered := events[:0]
		for _, e := range events {
			ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
			if err != nil {
				continue
			}
			if ts.After(since) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// readAll reads every monthly file; YYYY-MM names sort chronologically.
func (l *Logger) readAll() ([]Event, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)

	var events []Event
	for _, file := range files {
		fileEvents, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", filepath.Base(file), err)
		}
		events = append(events, fileEvents...)
	}
	return events, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}

// newEventID returns a time-sortable identifier: 48 bits of milliseconds
// followed by 80 random bits, hex encoded.
func newEventID(now time.Time) string {
	ms := uint64(now.UnixMilli())
	id := make([]byte, 16)
	for i := 5; i >= 0; i-- {
		id[i] = byte(ms)
		ms >>= 8
	}
	if _, err := rand.Read(id[6:]); err != nil {
		return strconv.FormatInt(now.UnixNano(), 16)
	}
	return hex.EncodeToString(id)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
