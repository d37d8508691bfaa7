// Package cli provides key pattern helpers shared by the CLI and the MCP
// server.
package cli

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNoMatch indicates a pattern selected no snippet.
var ErrNoMatch = errors.New("no snippets match")

// HasGlob reports whether pattern contains glob characters (*?[).
func HasGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// ValidatePattern checks glob syntax.
func ValidatePattern(pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}
	return nil
}

// ExpandPattern expands a glob pattern against keys. A pattern without glob
// characters must name an existing key exactly.
func ExpandPattern(pattern string, keys []string) ([]string, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}

	var matches []string
	for _, key := range keys {
		if matchKey(pattern, key) {
			matches = append(matches, key)
		}
	}
	if len(matches) == 0 {
		if HasGlob(pattern) {
			return nil, fmt.Errorf("%w pattern '%s'", ErrNoMatch, pattern)
		}
		return nil, fmt.Errorf("%w key '%s'", ErrNoMatch, pattern)
	}
	return matches, nil
}

// ExpandPatterns expands every pattern and returns the selected keys once
// each, in the order of keys.
func ExpandPatterns(patterns []string, keys []string) ([]string, error) {
	selected := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, keys)
		if err != nil {
			return nil, err
		}
		for _, key := range matches {
			selected[key] = true
		}
	}

	result := make([]string, 0, len(selected))
	for _, key := range keys {
		if selected[key] {
			result = append(result, key)
			delete(selected, key)
		}
	}
	return result, nil
}

// MatchAny reports whether key matches one of patterns. Invalid patterns
// never match.
func MatchAny(patterns []string, key string) bool {
	for _, pattern := range patterns {
		if matchKey(pattern, key) {
			return true
		}
	}
	return false
}

// matchKey uses path.Match so that '*' stops at '/' the same way on every
// platform; keys like "bank/iban" group naturally under "bank/*".
func matchKey(pattern, key string) bool {
	if !HasGlob(pattern) {
		return pattern == key
	}
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}
