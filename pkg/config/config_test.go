package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestDefaultDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)

	got, err := DefaultDir()
	if err != nil {
		t.Fatalf("DefaultDir failed: %v", err)
	}
	if got != dir {
		t.Errorf("DefaultDir() = %q, want %q", got, dir)
	}

	t.Setenv(HomeEnv, "")
	got, err = DefaultDir()
	if err != nil {
		t.Fatalf("DefaultDir failed: %v", err)
	}
	if filepath.Base(got) != DirName {
		t.Errorf("DefaultDir() = %q, want a %s directory", got, DirName)
	}
}

func TestLoadMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DbPath != "" {
		t.Errorf("DbPath = %q, want empty", cfg.DbPath)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", FileName)
	want := &Config{DbPath: "/data/snippets.db"}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := Save(path, want); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	if entries, _ := os.ReadDir(filepath.Dir(path)); len(entries) != 1 {
		t.Errorf("expected only %s in the directory, got %d entries", FileName, len(entries))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if !strings.Contains(string(data), `"DbPath": "/data/snippets.db"`) {
		t.Errorf("unexpected config file content: %s", data)
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

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *got != *want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestLoadCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("{not json"), FileMode); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); !errors.Is(err, ErrConfigCorrupted) {
		t.Errorf("Load() error = %v, want ErrConfigCorrupted", err)
	}
}

func TestResolve(t *testing.T) {
	t.Run("no config", func(t *testing.T) {
		dir := t.TempDir()
		res, err := Resolve(dir)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if res.DBPath != DefaultDBPath(dir) || res.Override != "" || res.Stale != "" {
			t.Errorf("unexpected resolution: %+v", res)
		}
	})

	t.Run("existing override", func(t *testing.T) {
		dir := t.TempDir()
		db := filepath.Join(t.TempDir(), "custom.db")
		if err := os.WriteFile(db, nil, FileMode); err != nil {
			t.Fatalf("failed to create db: %v", err)
		}
		if err := Save(Path(dir), &Config{DbPath: db}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		res, err := Resolve(dir)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if res.DBPath != db || res.Override != db {
			t.Errorf("unexpected resolution: %+v", res)
		}
	})

	t.Run("stale override ignored", func(t *testing.T) {
		dir := t.TempDir()
		missing := filepath.Join(t.TempDir(), "gone.db")
		if err := Save(Path(dir), &Config{DbPath: missing}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		res, err := Resolve(dir)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if res.DBPath != DefaultDBPath(dir) {
			t.Errorf("DBPath = %q, want default", res.DBPath)
		}
		if res.Stale != missing {
			t.Errorf("Stale = %q, want %q", res.Stale, missing)
		}
	})
}

func TestSetDBPath(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "nested", "my.db")

	got, err := SetDBPath(dir, target)
	if err != nil {
		t.Fatalf("SetDBPath failed: %v", err)
	}
	if got != target {
		t.Errorf("SetDBPath() = %q, want %q", got, target)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("target file not created: %v", err)
	}

	res, err := Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.DBPath != target {
		t.Errorf("DBPath = %q, want %q", res.DBPath, target)
	}
}

func TestSetDBPathKeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "existing.db")
	if err := os.WriteFile(target, []byte("k=v\n"), FileMode); err != nil {
		t.Fatalf("failed to write db: %v", err)
	}

	if _, err := SetDBPath(dir, target); err != nil {
		t.Fatalf("SetDBPath failed: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("failed to read db: %v", err)
	}
	if string(data) != "k=v\n" {
		t.Errorf("existing file modified: %q", data)
	}
}

func TestSetDBPathRejectsDirectory(t *testing.T) {
	if _, err := SetDBPath(t.TempDir(), t.TempDir()); err == nil {
		t.Error("expected error for a directory path")
	}
}
