package protect

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// testProtector returns a KeyProtector over a fresh random secret.
func testProtector(t *testing.T) *KeyProtector {
	t.Helper()
	secret := make([]byte, UserKeyLength)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("failed to generate secret: %v", err)
	}
	p, err := NewKeyProtector(secret, "machine-test", 1000)
	if err != nil {
		t.Fatalf("NewKeyProtector failed: %v", err)
	}
	return p
}

func TestSealUnsealRoundTrip(t *testing.T) {
	p := testProtector(t)

	values := []string{
		"CH132154646",
		"5551234567",
		"a=b=c",
		"pipe|inside",
		"multi\nline",
		"Grüße 世界",
		" leading and trailing ",
	}
	for _, v := range values {
		sealed, err := Seal(p, v)
		if err != nil {
			t.Fatalf("Seal(%q) failed: %v", v, err)
		}
		if sealed == v {
			t.Errorf("Seal(%q) returned plaintext", v)
		}
		got, err := Unseal(p, sealed)
		if err != nil {
			t.Fatalf("Unseal(%q) failed: %v", sealed, err)
		}
		if got != v {
			t.Errorf("round trip: got %q, want %q", got, v)
		}
	}
}

func TestSealEmpty(t *testing.T) {
	p := testProtector(t)

	sealed, err := Seal(p, "")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if sealed != "" {
		t.Errorf("Seal(\"\") = %q, want empty", sealed)
	}
	got, err := Unseal(p, "")
	if err != nil || got != "" {
		t.Errorf("Unseal(\"\") = %q, %v; want empty, nil", got, err)
	}
}

func TestSealOutputIsLineSafe(t *testing.T) {
	p := testProtector(t)
	sealed, err := Seal(p, "value with = and | and \n")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.ContainsAny([]byte(sealed), "|\r\n") {
		t.Errorf("sealed payload %q contains '|' or newline", sealed)
	}
}

func TestUnsealRejectsForeignInput(t *testing.T) {
	p := testProtector(t)
	other := testProtector(t)

	foreign, err := Seal(other, "secret")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	tests := []struct {
		name    string
		payload string
	}{
		{"plain text", "5551234567"},
		{"not base64", "hello world!"},
		{"base64 without magic", base64.StdEncoding.EncodeToString([]byte("abcdefghijklmnopqrstuvwxyz0123456789"))},
		{"other key", foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unseal(p, tt.payload); !errors.Is(err, ErrNotProtected) {
				t.Errorf("Unseal() error = %v, want ErrNotProtected", err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	p := testProtector(t)
	sealed, err := Seal(p, "CH132154646")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	tests := []struct {
		name     string
		payload  string
		wantKind Kind
		wantText string
	}{
		{"ciphertext", sealed, Encrypted, "CH132154646"},
		{"legacy plaintext", "5551234567", Unencrypted, "5551234567"},
		{"base64-looking plaintext", "abcd", Unencrypted, "abcd"},
		{"empty", "", Unencrypted, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(p, tt.payload)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.IsEncrypted() != (tt.wantKind == Encrypted) {
				t.Errorf("IsEncrypted() = %v", got.IsEncrypted())
			}
		})
	}
}

func TestKeyProtectorBinding(t *testing.T) {
	secret := make([]byte, UserKeyLength)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("failed to generate secret: %v", err)
	}

	base, err := NewKeyProtector(secret, "machine-a", 1000)
	if err != nil {
		t.Fatalf("NewKeyProtector failed: %v", err)
	}
	ciphertext, err := base.Protect([]byte("bound"))
	if err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	otherMachine, _ := NewKeyProtector(secret, "machine-b", 1000)
	if _, err := otherMachine.Unprotect(ciphertext); err == nil {
		t.Error("expected ciphertext to be unreadable on another machine")
	}

	otherUser, _ := NewKeyProtector(secret, "machine-a", 1001)
	if _, err := otherUser.Unprotect(ciphertext); err == nil {
		t.Error("expected ciphertext to be unreadable for another uid")
	}

	same, _ := NewKeyProtector(secret, "machine-a", 1000)
	got, err := same.Unprotect(ciphertext)
	if err != nil {
		t.Fatalf("Unprotect failed: %v", err)
	}
	if string(got) != "bound" {
		t.Errorf("got %q, want %q", got, "bound")
	}
}

func TestOpenUserKey(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("user key protector is not the default on Windows")
	}
	dir := filepath.Join(t.TempDir(), "snipctl")

	p1, err := OpenUserKey(dir)
	if err != nil {
		t.Fatalf("OpenUserKey failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, KeyFileName))
	if err != nil {
		t.Fatalf("key file not created: %v", err)
	}
	if info.Size() != UserKeyLength {
		t.Errorf("key file size = %d, want %d", info.Size(), UserKeyLength)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key file permissions = %04o, want 0600", perm)
	}

	sealed, err := Seal(p1, "persisted")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	// A second open reuses the same key file.
	p2, err := OpenUserKey(dir)
	if err != nil {
		t.Fatalf("second OpenUserKey failed: %v", err)
	}
	got, err := Unseal(p2, sealed)
	if err != nil {
		t.Fatalf("Unseal with reopened key failed: %v", err)
	}
	if got != "persisted" {
		t.Errorf("got %q, want %q", got, "persisted")
	}
}

func TestOpenUserKeyCorrupted(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("user key protector is not the default on Windows")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, KeyFileName), []byte("short"), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	if _, err := OpenUserKey(dir); !errors.Is(err, ErrKeyFileCorrupted) {
		t.Errorf("expected ErrKeyFileCorrupted, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	if Encrypted.String() != "encrypted" || Unencrypted.String() != "unencrypted" {
		t.Errorf("unexpected kind strings: %s, %s", Encrypted, Unencrypted)
	}
	if Kind(42).String() != "unknown" {
		t.Errorf("Kind(42).String() = %s", Kind(42))
	}
}
