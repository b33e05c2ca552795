package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/storagebuilder"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const ledgerTimeout = 30 * time.Second

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and maintain the notification ledger",
	}
	cmd.AddCommand(newLedgerListCmd(), newLedgerPurgeCmd())
	return cmd
}

func newLedgerListCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every recorded notification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(func(ctx context.Context, ledger storage.Ledger, _ Config) error {
				notifications, err := ledger.ListAll(ctx)
				if err != nil {
					return err
				}
				return writeNotifications(cmd.OutOrStdout(), output, notifications)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	return cmd
}

func newLedgerPurgeCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete records older than the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(func(ctx context.Context, ledger storage.Ledger, config Config) error {
				if !cmd.Flags().Changed("days") {
					days = config.Storage.RetentionDays
				}
				removed, err := ledger.Purge(ctx, days)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d records older than %d days\n", removed, days)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default from storage.retentionDays)")
	return cmd
}

func withLedger(fn func(ctx context.Context, ledger storage.Ledger, config Config) error) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	ledger, err := storagebuilder.New(config.Storage)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
	defer cancel()
	defer ledger.Close(ctx)

	return fn(ctx, ledger, config)
}

func writeNotifications(w io.Writer, format string, notifications []storage.Notification) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(notifications)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(notifications); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "EVENT ID\tLEAD (MIN)\tSENT AT")
		for _, n := range notifications {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", n.EventID, n.LeadMinutes, n.SentAt.Format(time.RFC3339))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
