package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/snipctl/pkg/audit"
)

// Audit flags
var (
	auditLimit int
	auditSince string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h, 7d)")
}

// auditCmd is the parent command for audit operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// unlockAudit opens the audit log for reading.
func unlockAudit() (*audit.Logger, error) {
	p, err := loadProtector()
	if err != nil {
		return nil, err
	}
	a := audit.NewLogger(auditDir(), audit.SourceCLI)
	if err := a.Unlock(p); err != nil {
		return nil, fmt.Errorf("failed to unlock audit log: %w", err)
	}
	return a, nil
}

// auditListCmd lists audit log entries
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := unlockAudit()
		if err != nil {
			return err
		}

		var since time.Time
		if auditSince != "" {
			duration, err := parseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid since format: %w", err)
			}
			since = time.Now().Add(-duration)
		}

		events, err := a.ListEvents(auditLimit, since)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No audit events found")
			return nil
		}

		for _, event := range events {
			// Format: TIMESTAMP OPERATION RESULT SOURCE [KEY]
			line := fmt.Sprintf("%s %s %s %s", event.Timestamp, event.Operation, event.Result, event.Actor.Source)
			if event.KeyHMAC != "" {
				keyDisplay := event.KeyHMAC
				if len(keyDisplay) > 16 {
					keyDisplay = keyDisplay[:16] + "..."
				}
				line += fmt.Sprintf(" key:%s", keyDisplay)
			}
			if event.Error != nil {
				line += fmt.Sprintf(" error:%s", event.Error.Code)
			}
			fmt.Fprintln(out, line)
		}

		fmt.Fprintf(out, "\nTotal: %d events\n", len(events))
		return nil
	},
}

// auditVerifyCmd verifies audit log integrity
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := unlockAudit()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Verifying audit log integrity...")

		result, err := a.Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if !result.Valid {
			fmt.Fprintf(out, "✗ Audit log verification FAILED\n")
			fmt.Fprintf(out, "  Records total: %d\n", result.RecordsTotal)
			fmt.Fprintf(out, "  Records verified: %d\n", result.RecordsVerified)
			fmt.Fprintln(out, "  Errors:")
			for _, e := range result.Errors {
				fmt.Fprintf(out, "    - %s\n", e)
			}
			return fmt.Errorf("audit log integrity check failed")
		}
		fmt.Fprintf(out, "✓ Audit log verified: %d records, chain intact\n", result.RecordsTotal)

		// Also output as JSON for machine parsing
		jsonResult, _ := json.Marshal(result)
		fmt.Fprintf(out, "\nJSON: %s\n", string(jsonResult))
		return nil
	},
}
