//go:build windows

package mcp

import (
	"fmt"
	"os"
)

// openPolicyFile opens path read-only. Windows has no O_NOFOLLOW, so a
// symlink is detected with Lstat before opening.
func openPolicyFile(path string) (*os.File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%w: %s", ErrPolicySymlink, path)
	}
	return os.OpenFile(path, os.O_RDONLY, 0)
}

// checkFileSecurity is a no-op: mode bits and ownership live in ACLs on
// Windows, and the file sits in the per-user profile directory.
func checkFileSecurity(_ os.FileInfo) error {
	return nil
}
