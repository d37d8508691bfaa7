// Package mcp implements the MCP (Model Context Protocol) server for snipctl.
// AI agents can see which snippets exist and ask for one to be copied to the
// clipboard, but never receive a plaintext value.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/snipctl/pkg/audit"
	"github.com/forest6511/snipctl/pkg/store"
)

// Server represents the MCP server for snipctl.
type Server struct {
	server *mcp.Server
	store  *store.Store
	policy *Policy
	audit  *audit.Logger
	logger *slog.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Store serves every tool. It should carry a clipboard and no launcher:
	// snippet_copy must never open a shortcut.
	Store *store.Store

	// PolicyDir holds mcp-policy.yaml. Without a valid policy snippet_copy
	// is disabled.
	PolicyDir string

	// Audit records tool calls when set.
	Audit *audit.Logger

	Logger  *slog.Logger
	Version string
}

// NewServer creates a new MCP server instance.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("mcp: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	policy, err := LoadPolicy(opts.PolicyDir)
	if err != nil {
		// Not fatal: snippet_copy stays disabled.
		if !errors.Is(err, ErrPolicyNotFound) {
			logger.Warn("failed to load MCP policy", "error", err)
		}
		policy = nil
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: "snipctl", Version: version}, nil),
		store:  opts.Store,
		policy: policy,
		audit:  opts.Audit,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snippet_list",
		Description: "List snippet keys, optionally filtered by glob patterns, and whether each has a shortcut. Does NOT return snippet values.",
	}, s.handleSnippetList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snippet_exists",
		Description: "Check if a snippet key exists. Does NOT return the snippet value.",
	}, s.handleSnippetExists)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snippet_get_masked",
		Description: "Get a masked version of a snippet value (e.g., '****WXYZ'). Useful for checking which snippet is meant without exposing it.",
	}, s.handleSnippetGetMasked)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "snippet_copy",
		Description: "Copy a snippet value to the user's clipboard. The value is never returned and no shortcut is launched. Requires policy approval.",
	}, s.handleSnippetCopy)
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// record writes an audit event for a tool call, if auditing is enabled.
func (s *Server) record(op, key string, err error, ctx map[string]string) {
	if s.audit == nil {
		return
	}
	var logErr error
	if err != nil {
		logErr = s.audit.LogError(op, key, "tool_error", err)
	} else {
		logErr = s.audit.LogSuccess(op, key, ctx)
	}
	if logErr != nil {
		s.logger.Warn("audit log write failed", "op", op, "error", logErr)
	}
}
