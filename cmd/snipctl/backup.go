package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/snipctl/internal/fsutil"
	"github.com/forest6511/snipctl/pkg/backup"
	"github.com/forest6511/snipctl/pkg/store"
)

// Backup flags
var (
	backupOutput  string
	backupStdout  bool
	backupKeyFile string
	backupNewKey  bool
	backupForce   bool
)

// Restore flags
var (
	restoreOverwrite  bool
	restoreDryRun     bool
	restoreVerifyOnly bool
	restoreKeyFile    string
)

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)

	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Output file path")
	backupCmd.Flags().BoolVar(&backupStdout, "stdout", false, "Output to stdout (for piping)")
	backupCmd.Flags().StringVar(&backupKeyFile, "key-file", "", "Encryption key file (32 bytes) instead of a passphrase")
	backupCmd.Flags().BoolVar(&backupNewKey, "new-key", false, "Generate the --key-file first")
	backupCmd.Flags().BoolVarP(&backupForce, "force", "f", false, "Overwrite existing file")

	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "Replace existing snippets instead of skipping them")
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Show what would be restored without writing")
	restoreCmd.Flags().BoolVar(&restoreVerifyOnly, "verify-only", false, "Only verify backup integrity")
	restoreCmd.Flags().StringVar(&restoreKeyFile, "key-file", "", "Decryption key file")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Creates an encrypted backup that can be restored on another machine",
	Long: `Creates a backup of every snippet, encrypted with a passphrase or a key
file instead of the current user and machine. Use it to move snippets to
another computer; the database file itself cannot be read there.

The passphrase is prompted for on a terminal, or read from the first line of
standard input otherwise.

Examples:
  snipctl backup -o snippets.bak
  snipctl backup --stdout > snippets.bak
  snipctl backup -o snippets.bak --key-file backup.key --new-key`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateBackupFlags(); err != nil {
			return err
		}
		if !backupStdout && !backupForce {
			if _, err := os.Stat(backupOutput); err == nil {
				return fmt.Errorf("output file already exists: %s (use --force to overwrite)", backupOutput)
			}
		}

		creds := backup.Credentials{KeyFile: backupKeyFile}
		if backupNewKey {
			if err := backup.GenerateKeyFile(backupKeyFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Generated key file %s; keep it apart from the backup\n", backupKeyFile)
		}
		if backupKeyFile == "" {
			pw, err := readPassphrase(cmd, true)
			if err != nil {
				return err
			}
			creds.Password = pw
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		header, err := s.Backup(&buf, creds)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		if backupStdout {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		if err := fsutil.WriteSecureFile(backupOutput, buf.Bytes(), backupForce); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d snippet(s) to %s\n", header.SnippetCount, backupOutput)
		return nil
	},
}

func validateBackupFlags() error {
	if !backupStdout && backupOutput == "" {
		return fmt.Errorf("either --output or --stdout is required")
	}
	if backupStdout && backupOutput != "" {
		return fmt.Errorf("--output and --stdout are mutually exclusive")
	}
	if backupNewKey && backupKeyFile == "" {
		return fmt.Errorf("--new-key requires --key-file")
	}
	return nil
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Restores snippets from an encrypted backup",
	Long: `Restores snippets from a file written by "snipctl backup". Values are
encrypted for the current user and machine on the way in. Existing keys are
skipped unless --overwrite is given; nothing is written if the backup fails
verification.

Examples:
  snipctl restore snippets.bak --dry-run
  snipctl restore snippets.bak --verify-only
  snipctl restore snippets.bak --overwrite
  snipctl restore snippets.bak --key-file backup.key`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if restoreDryRun && restoreVerifyOnly {
			return fmt.Errorf("--dry-run and --verify-only are mutually exclusive")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("backup file not found: %s", args[0])
			}
			return fmt.Errorf("failed to read backup: %w", err)
		}

		creds := backup.Credentials{KeyFile: restoreKeyFile}
		if restoreKeyFile == "" {
			pw, err := readPassphrase(cmd, false)
			if err != nil {
				return err
			}
			creds.Password = pw
		}

		out := cmd.OutOrStdout()
		if restoreVerifyOnly {
			result := backup.Verify(bytes.NewReader(data), creds)
			if !result.Valid {
				return fmt.Errorf("verification failed: %s", result.Error)
			}
			fmt.Fprintf(out, "Backup verification successful!\n")
			fmt.Fprintf(out, "  Version: %d\n", result.Version)
			fmt.Fprintf(out, "  Created: %s\n", result.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  Snippets: %d\n", result.SnippetCount)
			return nil
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		res, err := s.Restore(bytes.NewReader(data), creds, store.ImportOptions{
			Overwrite: restoreOverwrite,
			DryRun:    restoreDryRun,
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		prefix := "Restored"
		if restoreDryRun {
			prefix = "Would restore"
		}
		fmt.Fprintf(out, "%s: %d added, %d replaced, %d skipped\n", prefix, res.Added, res.Replaced, res.Skipped)
		if res.Malformed > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d invalid snippet(s) ignored\n", res.Malformed)
		}
		return nil
	},
}

// readPassphrase prompts for the backup passphrase without echo, twice when
// confirm is set. Off a terminal it reads the first line of input.
func readPassphrase(cmd *cobra.Command, confirm bool) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if cmd.InOrStdin() != os.Stdin || !term.IsTerminal(fd) {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		pw := strings.TrimRight(line, "\r\n")
		if pw == "" {
			return nil, backup.ErrEmptyPassword
		}
		return []byte(pw), nil
	}

	stderr := cmd.ErrOrStderr()
	fmt.Fprint(stderr, "Enter backup passphrase: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(pw) == 0 {
		return nil, backup.ErrEmptyPassword
	}
	if !confirm {
		return pw, nil
	}

	fmt.Fprint(stderr, "Confirm backup passphrase: ")
	again, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if !bytes.Equal(pw, again) {
		return nil, fmt.Errorf("passphrases do not match")
	}
	return pw, nil
}
