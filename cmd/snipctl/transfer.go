package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/snipctl/pkg/store"
)

// Import flags
var (
	importOverwrite bool
	importDryRun    bool
)

// Export flags
var (
	exportFormat string
	exportShell  string
	exportOutput string
	exportKeys   []string
	exportForce  bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)

	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "Replace existing snippets instead of skipping them")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without writing")

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(store.FormatCommands), "Output format: commands, plain")
	exportCmd.Flags().StringVar(&exportShell, "shell", defaultShell(), "Quoting for the commands format: sh, powershell")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: stdout)")
	exportCmd.Flags().StringSliceVarP(&exportKeys, "key", "k", nil, "Keys to export (glob pattern supported)")
	exportCmd.Flags().BoolVar(&exportForce, "force", false, "Overwrite existing file without confirmation")
}

func defaultShell() string {
	if runtime.GOOS == "windows" {
		return string(store.QuotePowerShell)
	}
	return string(store.QuotePOSIX)
}

// importCmd imports plaintext snippet files
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Imports snippets from a plaintext key=value file",
	Long: `Imports snippets from a plaintext file of key=value or
key=value|shortcut lines. Every value is encrypted on the way in. Existing
keys are skipped unless --overwrite is given. Lines without '=' are reported
as malformed.

Examples:
  snipctl import snippets.txt
  snipctl import snippets.txt --overwrite --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}

		res, err := s.Import(args[0], store.ImportOptions{
			Overwrite: importOverwrite,
			DryRun:    importDryRun,
		})
		if err != nil {
			return fmt.Errorf("failed to import snippets: %w", err)
		}

		prefix := "Imported"
		if importDryRun {
			prefix = "Would import"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d added, %d replaced, %d skipped\n", prefix, res.Added, res.Replaced, res.Skipped)
		if res.Malformed > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d malformed line(s) ignored\n", res.Malformed)
		}
		return nil
	},
}

// exportCmd exports snippets in clear text
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Exports snippets as a script of set commands or a plain file",
	Long: `Exports snippets in clear text.

The commands format writes one "snipctl set" invocation per snippet, quoted
for POSIX sh or PowerShell, so the output can be replayed on another machine.
The plain format writes key=value|shortcut lines that "snipctl import" reads
back; values containing '|' or line breaks do not survive it.

Examples:
  snipctl export -o restore.sh
  snipctl export --shell powershell -o restore.ps1
  snipctl export -f plain -k "bank/*" -o bank.txt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := store.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		quote, err := store.ParseQuoteStyle(exportShell)
		if err != nil {
			return err
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}

		opts := store.ExportOptions{Format: format, Quote: quote, Patterns: exportKeys}
		var res *store.ExportResult
		if exportOutput != "" {
			res, err = s.ExportFile(exportOutput, opts, exportForce)
		} else {
			res, err = s.Export(cmd.OutOrStdout(), opts)
		}
		if err != nil {
			return fmt.Errorf("failed to export snippets: %w", err)
		}

		stderr := cmd.ErrOrStderr()
		if res.Warning != "" {
			fmt.Fprintf(stderr, "warning: %s\n", res.Warning)
		}
		if len(res.Lossy) > 0 {
			fmt.Fprintf(stderr, "warning: values of %s contain '|' or line breaks and will not import back intact\n", strings.Join(res.Lossy, ", "))
		}
		if exportOutput != "" {
			fmt.Fprintf(stderr, "Exported %d snippet(s) to %s\n", res.Count, exportOutput)
		}
		return nil
	},
}
