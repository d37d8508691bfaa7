// Package config manages the snipctl configuration sidecar, which records the
// database path override so it survives restarts.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest6511/snipctl/internal/fsutil"
)

const (
	// HomeEnv overrides the snipctl directory.
	HomeEnv = "SNIPCTL_HOME"

	DirName        = ".snipctl"
	FileName       = "config.json"
	DefaultDBName  = "snippets.db"
	FileMode       = 0600
	DirMode        = 0700
	maxConfigBytes = 64 * 1024
)

// ErrConfigCorrupted indicates the configuration file is not valid JSON.
var ErrConfigCorrupted = errors.New("config: configuration file is corrupted")

// Config is the persisted configuration record.
type Config struct {
	DbPath string `json:"DbPath"`
}

// DefaultDir returns $SNIPCTL_HOME, or ~/.snipctl.
func DefaultDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return filepath.Abs(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// DefaultDBPath returns the database path used when no override is set.
func DefaultDBPath(dir string) string {
	return filepath.Join(dir, DefaultDBName)
}

// Path returns the configuration file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the configuration at path. A missing file yields an empty Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if len(data) > maxConfigBytes {
		return nil, fmt.Errorf("%w: file too large", ErrConfigCorrupted)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigCorrupted, err)
	}
	return &cfg, nil
}

// Save writes cfg to path with owner-only permissions, replacing any
// existing file.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: failed to marshal: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return fmt.Errorf("config: failed to create directory: %w", err)
	}

	if err := fsutil.WriteAtomic(path, data); err != nil {
		return fmt.Errorf("config: failed to write: %w", err)
	}
	return nil
}

// Resolution is the database path chosen at startup.
type Resolution struct {
	Dir    string // snipctl directory
	DBPath string // effective database path
	// Override is the configured path when it was honored.
	Override string
	// Stale is the configured path when it was ignored because the file
	// no longer exists.
	Stale string
}

// Resolve loads the configuration in dir and picks the database path. The
// override is honored only when its file exists; otherwise the default is
// used.
func Resolve(dir string) (*Resolution, error) {
	cfg, err := Load(Path(dir))
	if err != nil {
		return nil, err
	}

	res := &Resolution{Dir: dir, DBPath: DefaultDBPath(dir)}
	if cfg.DbPath == "" {
		return res, nil
	}
	if _, err := os.Stat(cfg.DbPath); err != nil {
		res.Stale = cfg.DbPath
		return res, nil
	}
	res.DBPath = cfg.DbPath
	res.Override = cfg.DbPath
	return res, nil
}

// SetDBPath makes path the persisted database location. path is made
// absolute and an empty file is created there when none exists, so that the
// override is honored on the next start.
func SetDBPath(dir, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("config: invalid path: %w", err)
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		return "", fmt.Errorf("config: %s is a directory", abs)
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(abs), DirMode); err != nil {
			return "", fmt.Errorf("config: failed to create directory: %w", err)
		}
		f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FileMode)
		if err != nil && !os.IsExist(err) {
			return "", fmt.Errorf("config: failed to create %s: %w", abs, err)
		}
		if f != nil {
			_ = f.Close()
		}
	case err != nil:
		return "", fmt.Errorf("config: failed to stat %s: %w", abs, err)
	}

	if err := Save(Path(dir), &Config{DbPath: abs}); err != nil {
		return "", err
	}
	return abs, nil
}
