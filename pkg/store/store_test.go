package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/forest6511/snipctl/pkg/audit"
	"github.com/forest6511/snipctl/pkg/protect"
	"github.com/forest6511/snipctl/pkg/record"
)

// fakeProtector marks ciphertext with a prefix and reverses the bytes.
type fakeProtector struct{}

var fakeMagic = []byte("fake:")

func (fakeProtector) Protect(plaintext []byte) ([]byte, error) {
	out := append([]byte{}, fakeMagic...)
	for i := len(plaintext) - 1; i >= 0; i-- {
		out = append(out, plaintext[i])
	}
	return out, nil
}

func (fakeProtector) Unprotect(ciphertext []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, fakeMagic) {
		return nil, protect.ErrNotProtected
	}
	body := ciphertext[len(fakeMagic):]
	out := make([]byte, 0, len(body))
	for i := len(body) - 1; i >= 0; i-- {
		out = append(out, body[i])
	}
	return out, nil
}

type fakeClipboard struct {
	writes []string
	err    error
}

func (c *fakeClipboard) WriteText(text string) error {
	if c.err != nil {
		return c.err
	}
	c.writes = append(c.writes, text)
	return nil
}

type fakeLauncher struct {
	launched []string
	err      error
}

func (l *fakeLauncher) Launch(path string) error {
	l.launched = append(l.launched, path)
	return l.err
}

type testEnv struct {
	path      string
	store     *Store
	clipboard *fakeClipboard
	launcher  *fakeLauncher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvAt(t, filepath.Join(t.TempDir(), "snippets.db"))
}

func newTestEnvAt(t *testing.T, path string, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{path: path, clipboard: &fakeClipboard{}, launcher: &fakeLauncher{}}
	opts = append([]Option{WithClipboard(env.clipboard), WithLauncher(env.launcher)}, opts...)
	s, err := Open(path, fakeProtector{}, opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	env.store = s
	return env
}

func (env *testEnv) content(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(env.path)
	if err != nil {
		t.Fatalf("failed to read database: %v", err)
	}
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func mustSet(t *testing.T, s *Store, key, value, shortcut string) {
	t.Helper()
	if _, err := s.Set(key, value, SetOptions{Shortcut: shortcut}); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

func getValue(t *testing.T, s *Store, key string) string {
	t.Helper()
	res, err := s.Get(key, GetOptions{NoCopy: true, Show: true})
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return res.Value
}

func TestSetGetConsistency(t *testing.T) {
	env := newTestEnv(t)

	values := map[string]string{
		"simple":    "CH132154646",
		"empty":     "",
		"equals":    "a=b=c",
		"pipe":      "x|y",
		"multiline": "line1\nline2",
		"unicode":   "Grüße 世界",
		"spaces":    "  padded  ",
	}
	for k, v := range values {
		mustSet(t, env.store, k, v, "")
	}
	for k, want := range values {
		if got := getValue(t, env.store, k); got != want {
			t.Errorf("Get(%q) = %q, want %q", k, got, want)
		}
	}
}

func TestScenarioIban(t *testing.T) {
	env := newTestEnv(t)

	mustSet(t, env.store, "iban", "CH132154646", "")

	content := env.content(t)
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), content)
	}
	if !strings.HasPrefix(lines[0], "iban=") {
		t.Errorf("line %q does not start with iban=", lines[0])
	}
	if strings.Contains(lines[0], "CH132154646") {
		t.Errorf("line %q contains the plaintext value", lines[0])
	}

	res, err := env.store.Get("iban", GetOptions{Show: true})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if res.Value != "CH132154646" {
		t.Errorf("Value = %q, want %q", res.Value, "CH132154646")
	}
	if !res.Copied {
		t.Error("expected value to be copied")
	}
	if !reflect.DeepEqual(env.clipboard.writes, []string{"CH132154646"}) {
		t.Errorf("clipboard writes = %v", env.clipboard.writes)
	}
}

func TestScenarioPhoneMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippets.db")
	writeFile(t, path, "phone=5551234567\n")

	env := newTestEnvAt(t, path)
	if env.store.Migrated() != 1 {
		t.Errorf("Migrated() = %d, want 1", env.store.Migrated())
	}

	content := env.content(t)
	if !strings.HasPrefix(content, "phone=") {
		t.Errorf("content %q does not start with phone=", content)
	}
	if strings.Contains(content, "5551234567") {
		t.Errorf("content %q still holds the plaintext value", content)
	}

	if got := getValue(t, env.store, "phone"); got != "5551234567" {
		t.Errorf("Get(phone) = %q, want %q", got, "5551234567")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippets.db")
	writeFile(t, path, strings.Join([]string{
		"phone=5551234567",
		"# not a record",
		"bank=123|/opt/bank/app",
		"empty=",
		"",
		"card=4111 1111 1111 1111",
	}, "\r\n"))

	env := newTestEnvAt(t, path)
	if env.store.Migrated() != 3 {
		t.Errorf("Migrated() = %d, want 3", env.store.Migrated())
	}
	first := env.content(t)

	n, err := env.store.Migrate()
	if err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second Migrate changed %d lines", n)
	}
	if second := env.content(t); second != first {
		t.Errorf("second Migrate changed the file:\n%q\n%q", first, second)
	}

	lines := strings.Split(strings.TrimSuffix(first, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines (blank dropped), got %d: %q", len(lines), first)
	}
	if lines[1] != "# not a record" {
		t.Errorf("raw line not kept verbatim: %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "|/opt/bank/app") {
		t.Errorf("shortcut lost: %q", lines[2])
	}
	if lines[3] != "empty=" {
		t.Errorf("empty value rewritten: %q", lines[3])
	}

	if got := getValue(t, env.store, "bank"); got != "123" {
		t.Errorf("Get(bank) = %q", got)
	}
}

func TestMigrateMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	env := newTestEnvAt(t, path)
	if env.store.Migrated() != 0 {
		t.Errorf("Migrated() = %d, want 0", env.store.Migrated())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Open must not create the database file")
	}
}

func TestUniqueness(t *testing.T) {
	env := newTestEnv(t)

	mustSet(t, env.store, "a", "1", "")
	mustSet(t, env.store, "k", "v1", "")
	mustSet(t, env.store, "b", "2", "")
	res, err := env.store.Set("k", "v2", SetOptions{})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !res.Replaced {
		t.Error("expected Replaced for an existing key")
	}

	entries, err := env.store.List(ListOptions{IncludeValues: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []Entry{{Key: "a", Value: "1"}, {Key: "k", Value: "v2"}, {Key: "b", Value: "2"}}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("List() = %+v, want %+v", entries, want)
	}
}

func TestDuplicateKeyLines(t *testing.T) {
	t.Run("set collapses repeats", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "snippets.db")
		writeFile(t, path, "k=a\nother=x\nk=b\n")
		env := newTestEnvAt(t, path)

		mustSet(t, env.store, "k", "c", "")
		entries, err := env.store.List(ListOptions{IncludeValues: true})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []Entry{{Key: "k", Value: "c"}, {Key: "other", Value: "x"}}
		if !reflect.DeepEqual(entries, want) {
			t.Errorf("List() = %+v, want %+v", entries, want)
		}
	})

	t.Run("remove drops every line", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "snippets.db")
		writeFile(t, path, "k=a\nk=b\n")
		env := newTestEnvAt(t, path)

		if err := env.store.Remove("k"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if _, err := env.store.Get("k", GetOptions{NoCopy: true}); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("Get after Remove: error = %v, want ErrKeyNotFound", err)
		}
		if keys, _ := env.store.Keys(); len(keys) != 0 {
			t.Errorf("Keys() = %v, want none", keys)
		}
	})
}

func TestSymlinkedDatabase(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.db")
	link := filepath.Join(dir, "link.db")
	writeFile(t, target, "phone=5551234567\n")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	env := newTestEnvAt(t, link)
	if env.store.Migrated() != 1 {
		t.Errorf("Migrated() = %d, want 1", env.store.Migrated())
	}
	mustSet(t, env.store, "k", "v", "")

	info, err := os.Lstat(link)
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("database symlink was replaced by a regular file")
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("failed to read target: %v", err)
	}
	if strings.Contains(string(data), "5551234567") || !strings.Contains(string(data), "k=") {
		t.Errorf("target content = %q", data)
	}
	if got := getValue(t, env.store, "phone"); got != "5551234567" {
		t.Errorf("Get(phone) = %q", got)
	}
	if got := getValue(t, env.store, "k"); got != "v" {
		t.Errorf("Get(k) = %q", got)
	}
}

func TestSetCreatesFileAndDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "dir", "snippets.db")
	env := newTestEnvAt(t, path)

	mustSet(t, env.store, "k", "v", "")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database not created: %v", err)
	}
}

func TestSetRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)

	for _, key := range []string{"", "a=b", "a\nb"} {
		if _, err := env.store.Set(key, "v", SetOptions{}); !errors.Is(err, record.ErrInvalidKey) {
			t.Errorf("Set(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
	if _, err := env.store.Set("k", "v", SetOptions{Shortcut: "a|b"}); !errors.Is(err, record.ErrInvalidShortcut) {
		t.Errorf("expected ErrInvalidShortcut, got %v", err)
	}
	if _, err := os.Stat(env.path); !os.IsNotExist(err) {
		t.Error("invalid Set must not create the database")
	}
}

func TestSetDropsShortcutWhenOmitted(t *testing.T) {
	env := newTestEnv(t)
	mustSet(t, env.store, "bank", "123", "/opt/bank")
	mustSet(t, env.store, "bank", "456", "")

	entries, err := env.store.List(ListOptions{IncludeValues: true, IncludeShortcuts: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].HasShortcut {
		t.Errorf("expected shortcut to be dropped, got %+v", entries)
	}
}

func TestRemoveThenGet(t *testing.T) {
	env := newTestEnv(t)
	mustSet(t, env.store, "k", "v", "")
	mustSet(t, env.store, "other", "x", "")

	if err := env.store.Remove("k"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := env.store.Get("k", GetOptions{NoCopy: true}); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get after Remove: error = %v, want ErrKeyNotFound", err)
	}
	if got := getValue(t, env.store, "other"); got != "x" {
		t.Errorf("other key affected: %q", got)
	}
}

func TestRemoveMissing(t *testing.T) {
	env := newTestEnv(t)

	err := env.store.Remove("k")
	if !errors.Is(err, ErrKeyNotFound) || !errors.Is(err, ErrStoreFileMissing) {
		t.Errorf("Remove on missing store: error = %v", err)
	}

	mustSet(t, env.store, "a", "1", "")
	err = env.store.Remove("k")
	if !errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrStoreFileMissing) {
		t.Errorf("Remove of missing key: error = %v", err)
	}
}

func TestGetMissingStore(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.store.Get("k", GetOptions{})
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("error = %v, want ErrKeyNotFound", err)
	}
	if !errors.Is(err, ErrStoreFileMissing) {
		t.Errorf("error = %v, want ErrStoreFileMissing", err)
	}
	if len(env.clipboard.writes) != 0 {
		t.Error("clipboard written for a missing key")
	}
}

func TestGetWithoutShowHidesValue(t *testing.T) {
	env := newTestEnv(t)
	mustSet(t, env.store, "k", "secret", "")

	res, err := env.store.Get("k", GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if res.Value != "" {
		t.Errorf("Value = %q, want it hidden", res.Value)
	}
	if res.Message == "" || strings.Contains(res.Message, "secret") {
		t.Errorf("unexpected message %q", res.Message)
	}
	if !reflect.DeepEqual(env.clipboard.writes, []string{"secret"}) {
		t.Errorf("clipboard writes = %v", env.clipboard.writes)
	}
}

func TestShortcutLaunch(t *testing.T) {
	env := newTestEnv(t)
	mustSet(t, env.store, "bank", "123", `C:\app.exe`)

	res, err := env.store.Get("bank", GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.Launched {
		t.Error("expected Launched")
	}
	if !reflect.DeepEqual(env.launcher.launched, []string{`C:\app.exe`}) {
		t.Errorf("launched = %v, want exactly one launch", env.launcher.launched)
	}

	res, err = env.store.Get("bank", GetOptions{NoCopy: true})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if res.Launched || res.Copied {
		t.Errorf("NoCopy must neither copy nor launch: %+v", res)
	}
	if len(env.launcher.launched) != 1 {
		t.Errorf("launched %d times, want 1", len(env.launcher.launched))
	}
	if len(env.clipboard.writes) != 1 {
		t.Errorf("clipboard written %d times, want 1", len(env.clipboard.writes))
	}
}

func TestLaunchFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.launcher.err = errors.New("no such program")
	mustSet(t, env.store, "bank", "123", "/missing/app")

	res, err := env.store.Get("bank", GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.Copied || res.Launched || res.LaunchErr == nil {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestClipboardFailure(t *testing.T) {
	env := newTestEnv(t)
	env.clipboard.err = errors.New("no display")
	mustSet(t, env.store, "bank", "123", "/opt/app")

	if _, err := env.store.Get("bank", GetOptions{}); err == nil {
		t.Error("expected clipboard error")
	}
	if len(env.launcher.launched) != 0 {
		t.Error("shortcut launched although copy failed")
	}
}

func TestList(t *testing.T) {
	env := newTestEnv(t)

	entries, err := env.store.List(ListOptions{})
	if err != nil {
		t.Fatalf("List on missing store failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", entries)
	}

	mustSet(t, env.store, "iban", "CH13", "")
	mustSet(t, env.store, "bank/pin", "1234", "/opt/bank")
	mustSet(t, env.store, "bank/user", "jdoe", "")

	tests := []struct {
		name string
		opts ListOptions
		want []Entry
	}{
		{
			name: "keys only",
			opts: ListOptions{},
			want: []Entry{{Key: "iban"}, {Key: "bank/pin"}, {Key: "bank/user"}},
		},
		{
			name: "with values",
			opts: ListOptions{IncludeValues: true},
			want: []Entry{{Key: "iban", Value: "CH13"}, {Key: "bank/pin", Value: "1234"}, {Key: "bank/user", Value: "jdoe"}},
		},
		{
			name: "with shortcuts",
			opts: ListOptions{IncludeValues: true, IncludeShortcuts: true},
			want: []Entry{
				{Key: "iban", Value: "CH13"},
				{Key: "bank/pin", Value: "1234", Shortcut: "/opt/bank", HasShortcut: true},
				{Key: "bank/user", Value: "jdoe"},
			},
		},
		{
			name: "pattern",
			opts: ListOptions{Patterns: []string{"bank/*"}},
			want: []Entry{{Key: "bank/pin"}, {Key: "bank/user"}},
		},
		{
			name: "pattern without match",
			opts: ListOptions{Patterns: []string{"card/*"}},
			want: []Entry{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.store.List(tt.opts)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("List() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestListErrors(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.store.List(ListOptions{IncludeShortcuts: true}); !errors.Is(err, ErrShortcutsNeedValues) {
		t.Errorf("expected ErrShortcutsNeedValues, got %v", err)
	}
	if _, err := env.store.List(ListOptions{Patterns: []string{"["}}); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("expected ErrInvalidPattern, got %v", err)
	}
}

func TestExistsAndKeys(t *testing.T) {
	env := newTestEnv(t)
	mustSet(t, env.store, "a", "1", "")
	mustSet(t, env.store, "b", "2", "")

	if ok, err := env.store.Exists("a"); err != nil || !ok {
		t.Errorf("Exists(a) = %v, %v", ok, err)
	}
	if ok, err := env.store.Exists("z"); err != nil || ok {
		t.Errorf("Exists(z) = %v, %v", ok, err)
	}
	keys, err := env.store.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestReadsBOMAndCRLF(t *testing.T) {
	dir := t.TempDir()

	utf8Path := filepath.Join(dir, "utf8.db")
	writeFile(t, utf8Path, "\xef\xbb\xbfphone=5551234567\r\nfax=42\r\n")
	env := newTestEnvAt(t, utf8Path)
	if got := getValue(t, env.store, "phone"); got != "5551234567" {
		t.Errorf("UTF-8 BOM: Get(phone) = %q", got)
	}
	if got := getValue(t, env.store, "fax"); got != "42" {
		t.Errorf("CRLF: Get(fax) = %q", got)
	}
	if content := env.content(t); strings.Contains(content, "\r") || strings.HasPrefix(content, "\xef") {
		t.Errorf("rewritten file keeps BOM or CRLF: %q", content)
	}

	// "k=v\r\n" in UTF-16LE with a byte order mark.
	utf16Path := filepath.Join(dir, "utf16.db")
	writeFile(t, utf16Path, "\xff\xfek\x00=\x00v\x00\r\x00\n\x00")
	env = newTestEnvAt(t, utf16Path)
	if got := getValue(t, env.store, "k"); got != "v" {
		t.Errorf("UTF-16: Get(k) = %q", got)
	}
}

func TestImportCounts(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	mustSet(t, env.store, "existing", "old", "")
	mustSet(t, env.store, "other", "keep", "")

	first := filepath.Join(dir, "first.txt")
	writeFile(t, first, "brand-new=1\nexisting=2\n")
	res, err := env.store.Import(first, ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if *res != (ImportResult{Added: 1, Skipped: 1}) {
		t.Errorf("first run = %+v, want {Added:1 Skipped:1}", *res)
	}
	if got := getValue(t, env.store, "existing"); got != "old" {
		t.Errorf("skipped key changed to %q", got)
	}

	second := filepath.Join(dir, "second.txt")
	writeFile(t, second, "other=3\n")
	res, err = env.store.Import(second, ImportOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if *res != (ImportResult{Replaced: 1}) {
		t.Errorf("second run = %+v, want {Replaced:1}", *res)
	}
	if got := getValue(t, env.store, "other"); got != "3" {
		t.Errorf("Get(other) = %q, want 3", got)
	}
	if got := getValue(t, env.store, "brand-new"); got != "1" {
		t.Errorf("Get(brand-new) = %q, want 1", got)
	}
	if strings.Contains(env.content(t), "brand-new=1") {
		t.Error("imported value stored in clear text")
	}
}

func TestImportMalformedAndShortcuts(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "import.txt")
	writeFile(t, path, strings.Join([]string{
		"",
		"no separator here",
		"=empty key",
		"   ",
		"bank=123|/opt/bank",
		"note=a=b",
	}, "\n"))

	res, err := env.store.Import(path, ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if *res != (ImportResult{Added: 2, Malformed: 2}) {
		t.Errorf("result = %+v, want {Added:2 Malformed:2}", *res)
	}

	entries, err := env.store.List(ListOptions{IncludeValues: true, IncludeShortcuts: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []Entry{
		{Key: "bank", Value: "123", Shortcut: "/opt/bank", HasShortcut: true},
		{Key: "note", Value: "a=b"},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("List() = %+v, want %+v", entries, want)
	}
}

func TestImportMissingFile(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.Import(filepath.Join(t.TempDir(), "nope.txt"), ImportOptions{})
	if !errors.Is(err, ErrImportFileMissing) {
		t.Errorf("expected ErrImportFileMissing, got %v", err)
	}
}

func TestImportDryRun(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "import.txt")
	writeFile(t, path, "a=1\nb=2\n")

	res, err := env.store.Import(path, ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if res.Added != 2 {
		t.Errorf("Added = %d, want 2", res.Added)
	}
	if _, err := os.Stat(env.path); !os.IsNotExist(err) {
		t.Error("dry run wrote the database")
	}
}

func TestImportDuplicateKeysInFile(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "import.txt")
	writeFile(t, path, "k=1\nk=2\n")

	res, err := env.store.Import(path, ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if *res != (ImportResult{Added: 1, Skipped: 1}) {
		t.Errorf("result = %+v", *res)
	}
	if got := getValue(t, env.store, "k"); got != "1" {
		t.Errorf("Get(k) = %q, want 1", got)
	}
}

func TestExportCommands(t *testing.T) {
	env := newTestEnv(t)
	mustSet(t, env.store, "iban", "CH13", "")
	mustSet(t, env.store, "quote", "it's", "")
	mustSet(t, env.store, "bank", "-123", "/opt/bank app")

	var buf bytes.Buffer
	res, err := env.store.Export(&buf, ExportOptions{})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res.Count != 3 || res.Warning != "" {
		t.Errorf("unexpected result: %+v", res)
	}

	out := buf.String()
	for _, want := range []string{
		"#!/bin/sh\n",
		"snipctl set --key='iban' --value='CH13'\n",
		`snipctl set --key='quote' --value='it'\''s'` + "\n",
		"snipctl set --key='bank' --value='-123' --shortcut='/opt/bank app'\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExportCommandsPowerShell(t *testing.T) {
	env := newTestEnv(t)
	mustSet(t, env.store, "quote", "it's", "")

	var buf bytes.Buffer
	if _, err := env.store.Export(&buf, ExportOptions{Quote: QuotePowerShell, Program: "snipctl.exe"}); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "#!/bin/sh") {
		t.Error("PowerShell export must not carry a shebang")
	}
	if !strings.Contains(out, "snipctl.exe set --key='quote' --value='it''s'\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestExportPlainRoundTrip(t *testing.T) {
	src := newTestEnv(t)
	mustSet(t, src.store, "iban", "CH13", "")
	mustSet(t, src.store, "bank", "123", "/opt/bank")
	mustSet(t, src.store, "pipe", "a|b", "")

	path := filepath.Join(t.TempDir(), "plain.txt")
	res, err := src.store.ExportFile(path, ExportOptions{Format: FormatPlain}, false)
	if err != nil {
		t.Fatalf("ExportFile failed: %v", err)
	}
	if res.Warning != PlainWarning {
		t.Errorf("Warning = %q", res.Warning)
	}
	if !reflect.DeepEqual(res.Lossy, []string{"pipe"}) {
		t.Errorf("Lossy = %v, want [pipe]", res.Lossy)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if !strings.Contains(string(data), "bank=123|/opt/bank\n") {
		t.Errorf("unexpected plain export:\n%s", data)
	}

	dst := newTestEnv(t)
	imp, err := dst.store.Import(path, ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if imp.Added != 3 {
		t.Errorf("Added = %d, want 3", imp.Added)
	}
	if got := getValue(t, dst.store, "bank"); got != "123" {
		t.Errorf("Get(bank) = %q", got)
	}
}

func TestExportFileRefusesOverwrite(t *testing.T) {
	env := newTestEnv(t)
	mustSet(t, env.store, "k", "v", "")
	path := filepath.Join(t.TempDir(), "out.sh")
	writeFile(t, path, "keep")

	if _, err := env.store.ExportFile(path, ExportOptions{}, false); err == nil {
		t.Error("expected error for existing file")
	}
	if _, err := env.store.ExportFile(path, ExportOptions{}, true); err != nil {
		t.Errorf("forced export failed: %v", err)
	}
}

func TestExportPatternsAndFormatErrors(t *testing.T) {
	env := newTestEnv(t)
	mustSet(t, env.store, "bank/pin", "1", "")
	mustSet(t, env.store, "iban", "2", "")

	var buf bytes.Buffer
	res, err := env.store.Export(&buf, ExportOptions{Format: FormatPlain, Patterns: []string{"bank/*"}})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res.Count != 1 || buf.String() != "bank/pin=1\n" {
		t.Errorf("unexpected export %q (%+v)", buf.String(), res)
	}

	if _, err := env.store.Export(&buf, ExportOptions{Format: "xml"}); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
	if _, err := env.store.Export(&buf, ExportOptions{Quote: "fish"}); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat for quote style, got %v", err)
	}
}

func TestAuditTrail(t *testing.T) {
	dir := t.TempDir()
	logger := audit.NewLogger(filepath.Join(dir, audit.DirName), audit.SourceCLI)
	if err := logger.Unlock(fakeProtector{}); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	env := newTestEnvAt(t, filepath.Join(dir, "snippets.db"), WithAudit(logger))
	mustSet(t, env.store, "k", "v", "")
	if _, err := env.store.Get("k", GetOptions{NoCopy: true}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := env.store.Get("missing", GetOptions{NoCopy: true}); err == nil {
		t.Fatal("expected error for missing key")
	}

	events, err := logger.ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	ops := []string{events[0].Operation, events[1].Operation, events[2].Operation}
	if !reflect.DeepEqual(ops, []string{audit.OpSet, audit.OpGet, audit.OpGet}) {
		t.Errorf("operations = %v", ops)
	}
	if events[2].Result != audit.ResultError || events[2].Error.Code != "not_found" {
		t.Errorf("unexpected failure event: %+v", events[2])
	}

	result, err := logger.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("audit chain invalid: %v", result.Errors)
	}
}

func TestParseQuoteStyle(t *testing.T) {
	tests := []struct {
		in   string
		want QuoteStyle
	}{
		{"", QuotePOSIX},
		{"bash", QuotePOSIX},
		{"PowerShell", QuotePowerShell},
		{"pwsh", QuotePowerShell},
	}
	for _, tt := range tests {
		got, err := ParseQuoteStyle(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseQuoteStyle(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		style QuoteStyle
		in    string
		want  string
	}{
		{QuotePOSIX, "plain", "'plain'"},
		{QuotePOSIX, "", "''"},
		{QuotePOSIX, "it's", `'it'\''s'`},
		{QuotePOSIX, "$HOME `x`", "'$HOME `x`'"},
		{QuotePowerShell, "it's", "'it''s'"},
		{QuotePowerShell, "it’s", "'it’’s'"},
		{QuotePowerShell, "$env:HOME", "'$env:HOME'"},
	}
	for _, tt := range tests {
		if got := tt.style.Quote(tt.in); got != tt.want {
			t.Errorf("%s.Quote(%q) = %q, want %q", tt.style, tt.in, got, tt.want)
		}
	}
}
