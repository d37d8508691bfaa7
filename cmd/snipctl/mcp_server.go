package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/snipctl/internal/clipboard"
	"github.com/forest6511/snipctl/internal/mcp"
	"github.com/forest6511/snipctl/pkg/audit"
	"github.com/forest6511/snipctl/pkg/store"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI assistant integration",
	Long: `Start the MCP server that lets AI assistants find snippets and put them
on the user's clipboard without ever receiving a plaintext value.

The server implements the Model Context Protocol (MCP) over stdio transport.

Available tools:
  - snippet_list:       List snippet keys and whether they have a shortcut
  - snippet_exists:     Check if a snippet exists
  - snippet_get_masked: Get masked snippet value (e.g., "****WXYZ")
  - snippet_copy:       Copy a snippet to the clipboard (never returned)

Policy:
  Create ~/.snipctl/mcp-policy.yaml (mode 0600) to allow snippet_copy:

    version: 1
    default_action: deny
    allowed_keys: ["iban", "bank/*"]
    denied_keys: ["bank/pin"]

  Without a policy file, snippet_copy is disabled (deny-by-default).
  Shortcuts are never opened from the MCP server.

Example MCP configuration:
  {
    "mcpServers": {
      "snipctl": {
        "type": "stdio",
        "command": "/path/to/snipctl",
        "args": ["mcp-server"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer()
	},
}

func runMCPServer() error {
	p, err := loadProtector()
	if err != nil {
		return err
	}

	// Tool calls are audited by the server itself, so the store carries no
	// audit log; it has no launcher either.
	s, err := store.Open(resolved.DBPath, p,
		store.WithClipboard(clipboard.System{}),
		store.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to open snippet database: %w", err)
	}

	server, err := mcp.NewServer(mcp.ServerOptions{
		Store:     s,
		PolicyDir: resolved.Dir,
		Audit:     openAudit(p, audit.SourceMCP),
		Logger:    logger,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
