package mcp

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/forest6511/snipctl/internal/cli"
)

// Policy controls which snippets snippet_copy may put on the clipboard.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	DeniedKeys    []string `yaml:"denied_keys"`
	AllowedKeys   []string `yaml:"allowed_keys"`
}

// PolicyFileName is the name of the policy file
const PolicyFileName = "mcp-policy.yaml"

// Policy action constants
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// ErrPolicyNotFound is returned when no policy file exists
var ErrPolicyNotFound = errors.New("MCP policy file not found")

// ErrPolicyInsecure is returned when policy file has insecure permissions
var ErrPolicyInsecure = errors.New("MCP policy file has insecure permissions")

// ErrPolicySymlink is returned when policy file is a symlink
var ErrPolicySymlink = errors.New("MCP policy file is a symlink")

// ErrPolicyNotOwnedByUser is returned when policy file is not owned by current user
var ErrPolicyNotOwnedByUser = errors.New("MCP policy file not owned by current user")

// LoadPolicy loads the MCP policy from dir. The file is opened without
// following symlinks and checked on the open descriptor, so it cannot be
// swapped between the check and the read.
func LoadPolicy(dir string) (*Policy, error) {
	f, err := openPolicyFile(filepath.Join(dir, PolicyFileName))
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) || errors.Is(err, ErrPolicySymlink) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}

	if err := checkFileSecurity(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	// Default to deny if not specified
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}
	if err := policy.ValidatePolicy(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// IsKeyAllowed checks if a snippet may be copied. Evaluation order:
// denied_keys, then allowed_keys, then default_action. Patterns are globs
// where '*' stops at '/'.
func (p *Policy) IsKeyAllowed(key string) (allowed bool, reason string) {
	for _, denied := range p.DeniedKeys {
		if cli.MatchAny([]string{denied}, key) {
			return false, fmt.Sprintf("key '%s' matches denied pattern '%s'", key, denied)
		}
	}

	if cli.MatchAny(p.AllowedKeys, key) {
		return true, ""
	}

	if p.DefaultAction == ActionAllow {
		return true, ""
	}
	return false, fmt.Sprintf("key '%s' not in allowed_keys list", key)
}

// ValidatePolicy validates the policy configuration
func (p *Policy) ValidatePolicy() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d", p.Version)
	}

	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("invalid default_action: %s (must be '%s' or '%s')", p.DefaultAction, ActionDeny, ActionAllow)
	}

	for _, pattern := range append(append([]string{}, p.DeniedKeys...), p.AllowedKeys...) {
		if err := cli.ValidatePattern(pattern); err != nil {
			return fmt.Errorf("invalid key pattern in policy: %w", err)
		}
	}
	return nil
}
