//go:build !windows

package mcp

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// openPolicyFile opens path read-only, refusing to follow a symlink.
func openPolicyFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW, 0)
	switch {
	case err == nil:
		return f, nil
	case os.IsNotExist(err):
		return nil, ErrPolicyNotFound
	case errors.Is(err, unix.ELOOP):
		return nil, fmt.Errorf("%w: %s", ErrPolicySymlink, path)
	default:
		return nil, err
	}
}

// checkFileSecurity requires mode 0600 and the current user as owner.
func checkFileSecurity(info os.FileInfo) error {
	if perm := info.Mode().Perm(); perm != 0600 {
		return fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if ok && stat.Uid != uint32(os.Getuid()) {
		return fmt.Errorf("%w: owner uid %d", ErrPolicyNotOwnedByUser, stat.Uid)
	}
	return nil
}
