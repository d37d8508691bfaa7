package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/snipctl/internal/clipboard"
	"github.com/forest6511/snipctl/pkg/store"
)

// Get flags
var (
	getNoCopy     bool
	getShow       bool
	getClearAfter time.Duration
)

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().BoolVar(&getNoCopy, "no-copy", false, "Do not copy to the clipboard (and do not open the shortcut)")
	getCmd.Flags().BoolVar(&getShow, "show", false, "Print the value to stdout")
	getCmd.Flags().DurationVar(&getClearAfter, "clear-after", 0, "Clear the clipboard after this long if it still holds the value (e.g. 30s)")
}

// getCmd copies a snippet to the clipboard
var getCmd = &cobra.Command{
	Use:     "get <key>",
	Aliases: []string{"need"},
	Short:   "Copies a snippet to the clipboard and opens its shortcut",
	Long: `Copies the value of a snippet to the clipboard. When the snippet has a
shortcut, the file or program it points to is opened after the copy.

Examples:
  snipctl get iban
  snipctl get iban --show --no-copy
  snipctl need phone --clear-after 30s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		if getNoCopy && getClearAfter > 0 {
			return fmt.Errorf("--clear-after cannot be used with --no-copy")
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}

		res, err := s.Get(key, store.GetOptions{
			NoCopy: getNoCopy,
			Show:   getShow || getClearAfter > 0,
		})
		if err != nil {
			return fmt.Errorf("failed to get snippet: %w", err)
		}

		out := cmd.OutOrStdout()
		if getShow {
			// The value goes to stdout alone so it can be captured.
			fmt.Fprintln(out, res.Value)
			out = cmd.ErrOrStderr()
		}
		fmt.Fprintln(out, res.Message)

		switch {
		case res.LaunchErr != nil:
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to open shortcut %s: %v\n", res.Shortcut, res.LaunchErr)
		case res.Launched:
			fmt.Fprintf(out, "Opened %s\n", res.Shortcut)
		}

		if res.Copied && getClearAfter > 0 {
			return clearClipboardAfter(cmd, res.Value, getClearAfter)
		}
		return nil
	},
}

// clearClipboardAfter blocks until d has passed or the user interrupts,
// then clears the clipboard if it still holds value.
func clearClipboardAfter(cmd *cobra.Command, value string, d time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Clipboard will be cleared in %s (Ctrl+C to clear now)\n", d)
	cleared, err := clipboard.ClearAfter(ctx, clipboard.System{}, value, d)
	if err != nil {
		return fmt.Errorf("failed to clear clipboard: %w", err)
	}
	if cleared {
		fmt.Fprintln(cmd.ErrOrStderr(), "Clipboard cleared")
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "Clipboard changed in the meantime; left as is")
	}
	return nil
}
