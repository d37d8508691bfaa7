package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/snipctl/internal/clipboard"
	"github.com/forest6511/snipctl/internal/launcher"
	"github.com/forest6511/snipctl/pkg/audit"
	"github.com/forest6511/snipctl/pkg/config"
	"github.com/forest6511/snipctl/pkg/protect"
	"github.com/forest6511/snipctl/pkg/store"
)

// Global flags
var (
	dbFlag  string
	verbose bool
)

var (
	resolved *config.Resolution
	logger   = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "snipctl",
	Short: "snipctl keeps encrypted text snippets one command away",
	Long: `snipctl stores short text snippets (IBANs, phone numbers, customer ids)
in a flat file whose values are encrypted for the current user and machine.
"snipctl get <key>" copies a snippet to the clipboard and opens its shortcut.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(cmd.ErrOrStderr(), verbose)
		return resolveConfig(cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Database file to use for this invocation")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Print debug logs to stderr")

	rootCmd.AddCommand(setPathCmd)
	rootCmd.AddCommand(getPathCmd)
	rootCmd.AddCommand(migrateCmd)
}

// newLogger returns the process logger: text on stderr, warnings only
// unless verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// resolveConfig picks the database path from the configuration and --db.
func resolveConfig(stderr io.Writer) error {
	dir, err := config.DefaultDir()
	if err != nil {
		return err
	}
	res, err := config.Resolve(dir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if res.Stale != "" {
		fmt.Fprintf(stderr, "warning: configured database %s no longer exists, using %s\n", res.Stale, res.DBPath)
	}
	if dbFlag != "" {
		abs, err := filepath.Abs(dbFlag)
		if err != nil {
			return fmt.Errorf("invalid --db path: %w", err)
		}
		res.DBPath = abs
	}
	resolved = res
	logger.Debug("database resolved", "path", res.DBPath, "override", res.Override)
	return nil
}

// loadProtector returns the platform protector for the snipctl directory.
func loadProtector() (protect.Protector, error) {
	p, err := protect.Default(resolved.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load protection key: %w", err)
	}
	return p, nil
}

// auditDir is the audit log directory inside the snipctl directory.
func auditDir() string {
	return filepath.Join(resolved.Dir, audit.DirName)
}

// openAudit returns an unlocked audit log, or nil if it cannot be used.
// The audit trail never blocks a snippet operation.
func openAudit(p protect.Protector, source string) *audit.Logger {
	a := audit.NewLogger(auditDir(), source)
	if err := a.Unlock(p); err != nil {
		logger.Warn("audit log disabled", "error", err)
		return nil
	}
	return a
}

// newStore returns a CLI store without running the migration.
func newStore(p protect.Protector) *store.Store {
	opts := []store.Option{
		store.WithClipboard(clipboard.System{}),
		store.WithLauncher(launcher.Desktop{}),
		store.WithLogger(logger),
	}
	if a := openAudit(p, audit.SourceCLI); a != nil {
		opts = append(opts, store.WithAudit(a))
	}
	return store.New(resolved.DBPath, p, opts...)
}

// openStore returns the CLI store after encrypting legacy plaintext values.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	p, err := loadProtector()
	if err != nil {
		return nil, err
	}
	s := newStore(p)
	n, err := s.Migrate()
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt legacy snippets: %w", err)
	}
	if n > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Encrypted %d legacy plaintext snippet(s) in %s\n", n, s.Path())
	}
	return s, nil
}

// confirm asks a [y/N] question on the command's input. Anything but y or
// yes, including a read error, is "no".
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// setPathCmd persists a database path override
var setPathCmd = &cobra.Command{
	Use:   "set-path <file>",
	Short: "Sets the database file used from now on",
	Long: `Sets the database file used from now on. The file is created when it
does not exist, and the setting is stored in config.json in the snipctl
directory ($SNIPCTL_HOME or ~/.snipctl).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.SetDBPath(resolved.Dir, args[0])
		if err != nil {
			return fmt.Errorf("failed to set database path: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database path set to %s\n", path)
		return nil
	},
}

// getPathCmd prints the effective database path
var getPathCmd = &cobra.Command{
	Use:   "get-path",
	Short: "Prints the database file in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), resolved.DBPath)
		return nil
	},
}

// migrateCmd encrypts legacy plaintext values
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Encrypts snippets still stored in plain text",
	Long: `Encrypts every snippet value that is still stored in plain text. Every
command does this automatically when it opens the database; migrate only
reports what it did.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProtector()
		if err != nil {
			return err
		}
		n, err := newStore(p).Migrate()
		if err != nil {
			return fmt.Errorf("failed to encrypt legacy snippets: %w", err)
		}
		if n == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to migrate: all snippets are encrypted")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Encrypted %d legacy plaintext snippet(s)\n", n)
		return nil
	},
}

// parseDuration parses a duration string like "30d", "1y", "24h". Anything
// but a whole number of days, weeks or years goes to time.ParseDuration.
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return time.ParseDuration(s)
	}

	switch unit {
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		return time.ParseDuration(s)
	}
}
