package store

import (
	"fmt"
	"strings"
)

// QuoteStyle selects the shell a command export targets.
type QuoteStyle string

const (
	QuotePOSIX      QuoteStyle = "sh"
	QuotePowerShell QuoteStyle = "powershell"
)

// ParseQuoteStyle accepts "sh"/"posix"/"bash" and "powershell"/"pwsh".
func ParseQuoteStyle(s string) (QuoteStyle, error) {
	switch strings.ToLower(s) {
	case "", "sh", "posix", "bash", "zsh":
		return QuotePOSIX, nil
	case "powershell", "pwsh", "ps":
		return QuotePowerShell, nil
	default:
		return "", fmt.Errorf("%w: unknown shell '%s': must be 'sh' or 'powershell'", ErrInvalidFormat, s)
	}
}

// Quote returns s as a single literal argument for the shell.
func (q QuoteStyle) Quote(s string) string {
	switch q {
	case QuotePowerShell:
		return quotePowerShell(s)
	default:
		return quotePOSIX(s)
	}
}

// quotePOSIX single-quotes s; an embedded quote becomes '\''.
func quotePOSIX(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// powerShellQuotes are the characters PowerShell accepts as a single quote.
var powerShellQuotes = strings.NewReplacer(
	"'", "''",
	"‘", "‘‘",
	"’", "’’",
	"‚", "‚‚",
	"‛", "‛‛",
)

// quotePowerShell single-quotes s; every kind of single quote is doubled.
func quotePowerShell(s string) string {
	return "'" + powerShellQuotes.Replace(s) + "'"
}
