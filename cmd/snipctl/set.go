package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/snipctl/pkg/store"
)

// Set flags
var (
	setKey      string
	setValue    string
	setShortcut string
)

func init() {
	rootCmd.AddCommand(setCmd)

	setCmd.Flags().StringVar(&setKey, "key", "", "Snippet key (instead of the first argument)")
	setCmd.Flags().StringVar(&setValue, "value", "", "Snippet value (instead of the second argument)")
	setCmd.Flags().StringVar(&setShortcut, "shortcut", "", "File or program to open after the snippet is copied")
}

// setCmd stores a snippet
var setCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Stores a snippet, replacing an existing one",
	Long: `Stores a snippet. The value is encrypted before it is written. When the
value is omitted it is read from a hidden prompt, or from standard input when
that is not a terminal. Setting an existing key replaces it, including its
shortcut.

Examples:
  snipctl set iban CH132154646
  snipctl set bank 123456 --shortcut "C:\Program Files\Bank\bank.exe"
  snipctl set --key=pin --value=-1234
  snipctl set token            # prompts without echo`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := setInput{
			args:     args,
			key:      setKey,
			keySet:   cmd.Flags().Changed("key"),
			value:    setValue,
			valueSet: cmd.Flags().Changed("value"),
		}
		key, value, ok, err := in.resolve()
		if err != nil {
			return err
		}
		if !ok {
			if value, err = readValue(cmd); err != nil {
				return err
			}
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		res, err := s.Set(key, value, store.SetOptions{Shortcut: setShortcut})
		if err != nil {
			return fmt.Errorf("failed to set snippet: %w", err)
		}

		if res.Replaced {
			fmt.Fprintf(cmd.OutOrStdout(), "Snippet '%s' updated\n", key)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Snippet '%s' saved\n", key)
		}
		return nil
	},
}

// setInput collects key and value from positional arguments and flags.
type setInput struct {
	args     []string
	key      string
	keySet   bool
	value    string
	valueSet bool
}

// resolve returns the key and, if given, the value. ok is false when the
// value still has to be read interactively.
func (in setInput) resolve() (key, value string, ok bool, err error) {
	switch {
	case in.keySet && len(in.args) > 0:
		if len(in.args) == 2 || in.valueSet {
			return "", "", false, fmt.Errorf("too many arguments: key and value are already given by flags")
		}
		// With --key the single argument is the value.
		return in.key, in.args[0], true, nil
	case in.keySet:
		key = in.key
	case len(in.args) > 0:
		key = in.args[0]
	default:
		return "", "", false, fmt.Errorf("a key is required (argument or --key)")
	}

	switch {
	case len(in.args) == 2 && in.valueSet:
		return "", "", false, fmt.Errorf("value given twice (argument and --value)")
	case len(in.args) == 2:
		return key, in.args[1], true, nil
	case in.valueSet:
		return key, in.value, true, nil
	default:
		return key, "", false, nil
	}
}

// readValue reads a value without echo from a terminal, or the whole of
// standard input otherwise.
func readValue(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if cmd.InOrStdin() == os.Stdin && term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Enter value: ")
		value, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return string(value), nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	// Trim one trailing newline for piped single-line input.
	value := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(value, "\r"), nil
}
