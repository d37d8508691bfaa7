package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/snipctl/internal/cli"
)

var removeForce bool

func init() {
	rootCmd.AddCommand(removeCmd)

	removeCmd.Flags().BoolVarP(&removeForce, "force", "f", false, "Skip confirmation prompt")
}

// removeCmd deletes snippets
var removeCmd = &cobra.Command{
	Use:     "remove <key|pattern>...",
	Aliases: []string{"rm"},
	Short:   "Removes snippets",
	Long: `Removes one or more snippets. Arguments may be glob patterns such as
"bank/*"; '*' does not cross '/'.

Examples:
  snipctl remove iban
  snipctl rm "old/*" --force`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}

		keys, err := s.Keys()
		if err != nil {
			return fmt.Errorf("failed to read snippets: %w", err)
		}
		targets, err := removeTargets(args, keys)
		if err != nil {
			return err
		}

		if !removeForce {
			question := fmt.Sprintf("Remove snippet '%s'?", targets[0])
			if len(targets) > 1 {
				question = fmt.Sprintf("Remove %d snippets (%s)?", len(targets), strings.Join(targets, ", "))
			}
			if !confirm(cmd, question) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}
		}

		for _, key := range targets {
			if err := s.Remove(key); err != nil {
				return fmt.Errorf("failed to remove snippet: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snippet '%s' removed\n", key)
		}
		return nil
	},
}

// removeTargets expands glob arguments against keys. Plain keys are passed
// through unchanged so that a missing key reports "key not found".
func removeTargets(args, keys []string) ([]string, error) {
	seen := make(map[string]bool)
	var targets []string
	for _, arg := range args {
		matches := []string{arg}
		if cli.HasGlob(arg) {
			var err error
			if matches, err = cli.ExpandPatterns([]string{arg}, keys); err != nil {
				return nil, err
			}
		}
		for _, key := range matches {
			if !seen[key] {
				seen[key] = true
				targets = append(targets, key)
			}
		}
	}
	return targets, nil
}
