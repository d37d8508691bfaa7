package fsutil

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestWriteAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.db")

	if err := WriteAtomic(path, []byte("first\n")); err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}
	if err := WriteAtomic(path, []byte("second\n")); err != nil {
		t.Fatalf("second WriteAtomic failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != "second\n" {
		t.Errorf("content = %q, want %q", data, "second\n")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if perm := info.Mode().Perm(); perm != FileMode {
			t.Errorf("permissions = %04o, want %04o", perm, FileMode)
		}
	}
}

func TestWriteAtomicRefusesSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need extra privileges on Windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	link := filepath.Join(dir, "link")
	if err := os.WriteFile(target, []byte("keep"), FileMode); err != nil {
		t.Fatalf("failed to write target: %v", err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	if err := WriteAtomic(link, []byte("x")); !errors.Is(err, ErrSymlink) {
		t.Errorf("WriteAtomic() error = %v, want ErrSymlink", err)
	}
	if err := WriteSecureFile(link, []byte("x"), true); !errors.Is(err, ErrSymlink) {
		t.Errorf("WriteSecureFile() error = %v, want ErrSymlink", err)
	}
}

func TestWriteSecureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.txt")

	if err := WriteSecureFile(path, []byte("one"), false); err != nil {
		t.Fatalf("WriteSecureFile failed: %v", err)
	}
	if err := WriteSecureFile(path, []byte("two"), false); !errors.Is(err, ErrFileExists) {
		t.Errorf("expected ErrFileExists without force, got %v", err)
	}
	if err := WriteSecureFile(path, []byte("three"), true); err != nil {
		t.Fatalf("WriteSecureFile with force failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != "three" {
		t.Errorf("content = %q, want %q", data, "three")
	}
}

func TestDiskSpace(t *testing.T) {
	info, err := DiskSpace(filepath.Join(t.TempDir(), "does", "not", "exist"))
	if err != nil {
		t.Fatalf("DiskSpace failed: %v", err)
	}
	if info.Total == 0 {
		t.Error("expected non-zero total")
	}
	if info.UsedPct < 0 || info.UsedPct > 100 {
		t.Errorf("UsedPct = %d, out of range", info.UsedPct)
	}
}

func TestCheckDiskSpaceForWrite(t *testing.T) {
	if math.MaxInt == math.MaxInt32 {
		t.Skip("needs a 64-bit int to request more than any disk holds")
	}
	dir := t.TempDir()
	if err := CheckDiskSpaceForWrite(dir, 128, nil); err != nil {
		t.Errorf("unexpected error for a small write: %v", err)
	}
	err := CheckDiskSpaceForWrite(dir, math.MaxInt, nil)
	if !errors.Is(err, ErrInsufficientDisk) {
		t.Errorf("expected ErrInsufficientDisk, got %v", err)
	}
}
