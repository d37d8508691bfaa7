package main

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(snipctl completion bash)

  # To load for each session (Linux):
  $ snipctl completion bash > ~/.local/share/bash-completion/completions/snipctl

Zsh:
  # Ensure completion is enabled:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  $ snipctl completion zsh > ~/.zsh/completions/_snipctl

Fish:
  $ snipctl completion fish > ~/.config/fish/completions/snipctl.fish

PowerShell:
  PS> snipctl completion powershell >> $PROFILE

Snippet keys are completed for get, set and remove. Completion only reads
key names; no value is decrypted. Set SNIPCTL_COMPLETION_DISABLED=1 to turn
it off.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)

	getCmd.ValidArgsFunction = completeSnippetKeys
	setCmd.ValidArgsFunction = completeSnippetKeys
	removeCmd.ValidArgsFunction = completeSnippetKeys
	_ = listCmd.RegisterFlagCompletionFunc("key", completeSnippetKeys)
	_ = exportCmd.RegisterFlagCompletionFunc("key", completeSnippetKeys)
}

// completeSnippetKeys completes the first key argument. It reads the
// database without migrating it and never prompts.
func completeSnippetKeys(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if os.Getenv("SNIPCTL_COMPLETION_DISABLED") == "1" {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if cmd != removeCmd && len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	// Completion runs without the root pre-run hook.
	if err := resolveConfig(io.Discard); err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	p, err := loadProtector()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	keys, err := newStore(p).Keys()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	return filterKeys(keys, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// filterKeys returns the keys starting with prefix, ignoring case.
func filterKeys(keys []string, prefix string) []string {
	var filtered []string
	lowerPrefix := strings.ToLower(prefix)
	for _, key := range keys {
		if strings.HasPrefix(strings.ToLower(key), lowerPrefix) {
			filtered = append(filtered, key)
		}
	}
	return filtered
}
