package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/snipctl/pkg/audit"
	"github.com/forest6511/snipctl/pkg/store"
)

// SnippetListInput represents input for snippet_list tool.
type SnippetListInput struct {
	Patterns []string `json:"patterns,omitempty"`
}

// SnippetListOutput represents output for snippet_list tool.
type SnippetListOutput struct {
	Snippets []SnippetInfo `json:"snippets"`
}

// SnippetInfo describes a snippet without its value.
type SnippetInfo struct {
	Key         string `json:"key"`
	HasShortcut bool   `json:"has_shortcut"`
}

// SnippetExistsInput represents input for snippet_exists tool.
type SnippetExistsInput struct {
	Key string `json:"key"`
}

// SnippetExistsOutput represents output for snippet_exists tool.
type SnippetExistsOutput struct {
	Exists bool   `json:"exists"`
	Key    string `json:"key"`
}

// SnippetGetMaskedInput represents input for snippet_get_masked tool.
type SnippetGetMaskedInput struct {
	Key string `json:"key"`
}

// SnippetGetMaskedOutput represents output for snippet_get_masked tool.
type SnippetGetMaskedOutput struct {
	Key         string `json:"key"`
	MaskedValue string `json:"masked_value"`
	ValueLength int    `json:"value_length"`
}

// SnippetCopyInput represents input for snippet_copy tool.
type SnippetCopyInput struct {
	Key string `json:"key"`
}

// SnippetCopyOutput represents output for snippet_copy tool.
type SnippetCopyOutput struct {
	Key         string `json:"key"`
	Copied      bool   `json:"copied"`
	HasShortcut bool   `json:"has_shortcut"`
}

// handleSnippetList handles the snippet_list tool call.
func (s *Server) handleSnippetList(_ context.Context, _ *mcp.CallToolRequest, input SnippetListInput) (*mcp.CallToolResult, SnippetListOutput, error) {
	// Values are decrypted only to reach the shortcut column and are dropped here.
	entries, err := s.store.List(store.ListOptions{
		IncludeValues:    true,
		IncludeShortcuts: true,
		Patterns:         input.Patterns,
	})
	s.record(audit.OpList, "", err, map[string]string{"count": strconv.Itoa(len(entries))})
	if err != nil {
		return nil, SnippetListOutput{}, fmt.Errorf("failed to list snippets: %w", err)
	}

	output := SnippetListOutput{Snippets: make([]SnippetInfo, 0, len(entries))}
	for _, e := range entries {
		output.Snippets = append(output.Snippets, SnippetInfo{Key: e.Key, HasShortcut: e.HasShortcut})
	}
	return nil, output, nil
}

// handleSnippetExists handles the snippet_exists tool call.
func (s *Server) handleSnippetExists(_ context.Context, _ *mcp.CallToolRequest, input SnippetExistsInput) (*mcp.CallToolResult, SnippetExistsOutput, error) {
	if input.Key == "" {
		return nil, SnippetExistsOutput{}, errors.New("key is required")
	}

	key, found, err := s.resolveKey(input.Key)
	s.record(audit.OpExists, input.Key, err, map[string]string{"found": strconv.FormatBool(found)})
	if err != nil {
		return nil, SnippetExistsOutput{}, fmt.Errorf("failed to look up snippet: %w", err)
	}
	if !found {
		key = input.Key
	}
	return nil, SnippetExistsOutput{Exists: found, Key: key}, nil
}

// handleSnippetGetMasked handles the snippet_get_masked tool call.
func (s *Server) handleSnippetGetMasked(_ context.Context, _ *mcp.CallToolRequest, input SnippetGetMaskedInput) (*mcp.CallToolResult, SnippetGetMaskedOutput, error) {
	if input.Key == "" {
		return nil, SnippetGetMaskedOutput{}, errors.New("key is required")
	}

	key, err := s.mustResolveKey(input.Key)
	if err != nil {
		s.record(audit.OpGetMasked, input.Key, err, nil)
		return nil, SnippetGetMaskedOutput{}, err
	}

	res, err := s.store.Get(key, store.GetOptions{NoCopy: true, Show: true})
	s.record(audit.OpGetMasked, key, err, nil)
	if err != nil {
		return nil, SnippetGetMaskedOutput{}, fmt.Errorf("failed to get snippet: %w", err)
	}

	return nil, SnippetGetMaskedOutput{
		Key:         key,
		MaskedValue: maskValue(res.Value),
		ValueLength: len([]rune(res.Value)),
	}, nil
}

// handleSnippetCopy handles the snippet_copy tool call.
func (s *Server) handleSnippetCopy(_ context.Context, _ *mcp.CallToolRequest, input SnippetCopyInput) (*mcp.CallToolResult, SnippetCopyOutput, error) {
	if input.Key == "" {
		return nil, SnippetCopyOutput{}, errors.New("key is required")
	}

	if s.policy == nil {
		s.deny(audit.OpCopy, input.Key, "no policy")
		return nil, SnippetCopyOutput{}, fmt.Errorf("MCP policy not configured. Create %s to enable snippet_copy", PolicyFileName)
	}

	key, err := s.mustResolveKey(input.Key)
	if err != nil {
		s.record(audit.OpCopy, input.Key, err, nil)
		return nil, SnippetCopyOutput{}, err
	}

	if allowed, reason := s.policy.IsKeyAllowed(key); !allowed {
		s.deny(audit.OpCopy, key, reason)
		return nil, SnippetCopyOutput{}, fmt.Errorf("snippet not allowed by policy: %s", reason)
	}

	res, err := s.store.Get(key, store.GetOptions{})
	s.record(audit.OpCopy, key, err, nil)
	if err != nil {
		return nil, SnippetCopyOutput{}, fmt.Errorf("failed to copy snippet: %w", err)
	}
	return nil, SnippetCopyOutput{Key: key, Copied: res.Copied, HasShortcut: res.HasShortcut}, nil
}

func (s *Server) deny(op, key, reason string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogDenied(op, key, reason); err != nil {
		s.logger.Warn("audit log write failed", "op", op, "error", err)
	}
}

// resolveKey finds the stored key for a key typed by an agent. An exact
// match wins; otherwise keys are compared in Unicode NFC, so a composed "é"
// finds a key stored decomposed and the other way around.
func (s *Server) resolveKey(key string) (string, bool, error) {
	keys, err := s.store.Keys()
	if err != nil {
		return "", false, err
	}

	want := norm.NFC.String(key)
	match := ""
	for _, k := range keys {
		if k == key {
			return k, true, nil
		}
		if match == "" && norm.NFC.String(k) == want {
			match = k
		}
	}
	return match, match != "", nil
}

func (s *Server) mustResolveKey(key string) (string, error) {
	resolved, found, err := s.resolveKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to look up snippet: %w", err)
	}
	if !found {
		return "", fmt.Errorf("%w: %s", store.ErrKeyNotFound, key)
	}
	return resolved, nil
}

// maskValue masks a snippet value, counting characters rather than bytes.
// | Length  | Format          | Example   |
// |---------|-----------------|-----------|
// | 1-4     | All *           | ****      |
// | 5-8     | Show last 2     | ******XY  |
// | 9+      | Show last 4     | ****WXYZ  |
func maskValue(value string) string {
	runes := []rune(value)
	length := len(runes)

	switch {
	case length == 0:
		return ""
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + string(runes[length-2:])
	default:
		return strings.Repeat("*", length-4) + string(runes[length-4:])
	}
}
