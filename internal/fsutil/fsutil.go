// Package fsutil holds the file-system helpers shared by the store, the audit
// log and the CLI: owner-only atomic writes, guarded export writes and disk
// space checks.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	FileMode = 0600 // Owner read/write only
	DirMode  = 0700 // Owner read/write/execute only

	// MinDiskSpaceBytes is the free space required before any write.
	MinDiskSpaceBytes = 1024 * 1024
	// DiskWarningPercent triggers a low-space warning.
	DiskWarningPercent = 95
)

// Errors
var (
	ErrInsufficientDisk = errors.New("fsutil: insufficient disk space")
	ErrSymlink          = errors.New("security: refusing to write to symlink")
	ErrFileExists       = errors.New("file already exists")
)

// DiskSpaceInfo contains disk usage information
type DiskSpaceInfo struct {
	Total     uint64 // Total disk space in bytes
	Free      uint64 // Free disk space in bytes
	Available uint64 // Available to non-root users
	UsedPct   int    // Percentage of disk used
}

// CheckDiskSpaceForWrite verifies there is room for dataSize bytes next to
// path. Failing to read disk stats is reported through warn, if set, and does
// not block the write.
func CheckDiskSpaceForWrite(path string, dataSize int, warn func(format string, args ...any)) error {
	info, err := DiskSpace(path)
	if err != nil {
		if warn != nil {
			warn("failed to check disk space: %v", err)
		}
		return nil
	}

	required := uint64(MinDiskSpaceBytes)
	if need := uint64(dataSize) * 2; need > required {
		required = need
	}
	if info.Available < required {
		return fmt.Errorf("%w: only %d KB available, need at least %d KB",
			ErrInsufficientDisk, info.Available/1024, required/1024)
	}
	if info.UsedPct >= DiskWarningPercent && warn != nil {
		warn("disk is %d%% full, consider freeing space", info.UsedPct)
	}
	return nil
}

// WriteAtomic replaces path with data by writing a temporary file (created
// 0600) in the same directory and renaming it over the target. The parent
// directory is created if needed. Existing symlinks at path are refused.
func WriteAtomic(path string, data []byte) error {
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: %s", ErrSymlink, path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// WriteSecureFile writes content to a new file with 0600 permissions.
// Symlinks are refused, and an existing file is only replaced when force is
// set.
func WriteSecureFile(path string, content []byte, force bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s", ErrSymlink, absPath)
		}
		if !force {
			return fmt.Errorf("%w: %s (use --force to overwrite)", ErrFileExists, absPath)
		}
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// O_EXCL unless forced closes the window between Lstat and open.
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(absPath, flags, FileMode)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s (use --force to overwrite)", ErrFileExists, absPath)
		}
		return fmt.Errorf("failed to create file: %w", err)
	}

	_, writeErr := f.Write(content)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write file: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close file: %w", closeErr)
	}
	return nil
}

// existingAncestor returns path or its closest existing parent.
func existingAncestor(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
