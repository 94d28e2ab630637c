package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func purgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete settled ledger records older than the retention window",
		Long: `Delete applied, skipped and failed ledger records received before the
retention window. Records still processing are never removed. The redis
ledger expires records on its own, so purge reports zero there.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStoreConfig()
			if err != nil {
				return err
			}

			olderThan, _ := cmd.Flags().GetDuration("older-than")
			if olderThan == 0 {
				olderThan = cfg.LedgerRetention
			}

			ledger, closeLedger, err := openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeLedger()

			return runPurge(cmd.Context(), cmd.OutOrStdout(), ledger, olderThan)
		},
	}

	cmd.Flags().Duration("older-than", 0, "Retention window (defaults to LEDGER_RETENTION)")

	return cmd
}

func runPurge(ctx context.Context, out io.Writer, ledger ledgerAdmin, olderThan time.Duration) error {
	if olderThan < time.Hour {
		return fmt.Errorf("--older-than must be at least 1h, got %s", olderThan)
	}

	n, err := ledger.Purge(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	slog.Info("ledger purged", "records", n, "older_than", olderThan.String())
	fmt.Fprintf(out, "purged %d ledger records older than %s\n", n, olderThan)
	return nil
}
