// Package launcher opens the shortcut attached to a snippet with the
// desktop's default handler.
package launcher

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/browser"
)

// ErrTargetNotFound indicates the shortcut path does not exist.
var ErrTargetNotFound = errors.New("launcher: shortcut target not found")

// Desktop launches files through xdg-open, open or the Windows shell.
type Desktop struct {
	// Output receives the handler's stdout and stderr; nil discards it.
	Output io.Writer
}

// Launch opens path. Relative paths are resolved against the working
// directory.
func (d Desktop) Launch(path string) error {
	abs, err := filepath.Abs(os.ExpandEnv(path))
	if err != nil {
		return fmt.Errorf("launcher: invalid path %q: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrTargetNotFound, abs)
		}
		return fmt.Errorf("launcher: %w", err)
	}

	out := d.Output
	if out == nil {
		out = io.Discard
	}
	browser.Stdout = out
	browser.Stderr = out

	if err := browser.OpenFile(abs); err != nil {
		return fmt.Errorf("launcher: failed to open %s: %w", abs, err)
	}
	return nil
}
