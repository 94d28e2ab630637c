package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger records by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := loadStoreConfig()
			if err != nil {
				return err
			}
			ledger, closeLedger, err := openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeLedger()

			return runList(cmd.Context(), cmd.OutOrStdout(), ledger, domain.LedgerStatus(status), limit, asJSON)
		},
	}

	cmd.Flags().StringP("status", "s", string(domain.LedgerStatusFailed), "Ledger status (processing, applied, skipped, failed)")
	cmd.Flags().IntP("limit", "n", 50, "Maximum records")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func runList(ctx context.Context, out io.Writer, ledger ledgerAdmin, status domain.LedgerStatus, limit int, asJSON bool) error {
	if !status.IsValid() {
		return fmt.Errorf("unknown status %q", status)
	}
	if limit < 1 {
		return fmt.Errorf("--limit must be positive")
	}

	records, err := ledger.List(ctx, status, limit)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "no %s records\n", status)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tTYPE\tSUBJECT\tRECEIVED\tREASON")
	for _, rec := range records {
		reason := ""
		if rec.FailureReason != nil {
			reason = *rec.FailureReason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.EventID, rec.EventType, rec.SubjectID, rec.ReceivedAt.Format(time.RFC3339), reason)
	}
	return tw.Flush()
}
