package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forest6511/snipctl/pkg/store"
)

// List flags
var (
	listValues    bool
	listShortcuts bool
	listKeys      []string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listValues, "values", false, "Show decrypted values")
	listCmd.Flags().BoolVar(&listShortcuts, "shortcuts", false, "Show shortcuts (requires --values)")
	listCmd.Flags().StringSliceVarP(&listKeys, "key", "k", nil, "Keys to list (glob pattern supported)")
}

// listCmd lists snippets
var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Lists snippet keys",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}

		entries, err := s.List(store.ListOptions{
			IncludeValues:    listValues,
			IncludeShortcuts: listShortcuts,
			Patterns:         listKeys,
		})
		if err != nil {
			return fmt.Errorf("failed to list snippets: %w", err)
		}

		if len(entries) == 0 {
			if len(listKeys) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No snippets found")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No snippets stored")
			}
			return nil
		}

		if !listValues {
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), e.Key)
			}
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, e := range entries {
			if listShortcuts && e.HasShortcut {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Key, e.Value, e.Shortcut)
			} else {
				fmt.Fprintf(w, "%s\t%s\n", e.Key, e.Value)
			}
		}
		return w.Flush()
	},
}
