// Package clipboard writes snippet values to the system clipboard and clears
// them again after a delay.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// ErrUnsupported indicates no clipboard backend is available, e.g. on Linux
// without xclip, xsel or wl-clipboard.
var ErrUnsupported = errors.New("clipboard: not supported on this system (install xclip, xsel or wl-clipboard)")

// ReadWriter is the clipboard surface used by ClearAfter.
type ReadWriter interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// System is the OS clipboard.
type System struct{}

// WriteText replaces the clipboard content with text.
func (System) WriteText(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: failed to write: %w", err)
	}
	return nil
}

// ReadText returns the current clipboard content.
func (System) ReadText() (string, error) {
	if clipboard.Unsupported {
		return "", ErrUnsupported
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("clipboard: failed to read: %w", err)
	}
	return text, nil
}

// ClearAfter waits for d and then clears the clipboard if it still holds
// value. It reports whether the clipboard was cleared. Cancelling ctx clears
// immediately under the same condition.
func ClearAfter(ctx context.Context, rw ReadWriter, value string, d time.Duration) (bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	current, err := rw.ReadText()
	if err != nil {
		return false, err
	}
	if current != value {
		return false, nil
	}
	if err := rw.WriteText(""); err != nil {
		return false, err
	}
	return true, nil
}
