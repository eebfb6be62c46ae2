package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/certguard/certguard/pkg/client"
)

// ── ledger ───────────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and administer the certificate ledger (Admin)",
}

var ledgerOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show the chain length and root hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		ov, err := c.LedgerOverview(context.Background())
		if err != nil {
			return fmt.Errorf("ledger overview: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, ov)
		}
		fmt.Fprintf(out, "Entries: %d\nRoot:    %s\n", ov.Entries, ov.Root)
		return nil
	},
}

var ledgerRecordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List every record on the chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		records, err := c.LedgerRecords(context.Background())
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, records)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tID\tSTUDENT\tINSTITUTION\tHASH")
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.Seq, r.ID, r.StudentName, r.IssuingInstitution, shortHash(r.Hash))
		}
		return w.Flush()
	},
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Walk the chain and report integrity failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		report, err := c.VerifyLedger(context.Background())
		if err != nil {
			return fmt.Errorf("verify ledger: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, report)
		}
		for _, line := range report.Log {
			fmt.Fprintln(out, line)
		}
		if !report.IsValid {
			return fmt.Errorf("ledger integrity check failed: %d failure(s)", len(report.Failures))
		}
		fmt.Fprintln(out, "✓ Ledger is intact")
		return nil
	},
}

var ledgerTamperCmd = &cobra.Command{
	Use:   "tamper",
	Short: "Alter one random record to demonstrate tamper detection",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		res, err := c.Tamper(context.Background())
		if err != nil {
			return fmt.Errorf("tamper: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, res)
		}
		fmt.Fprintln(out, res.Message)
		return nil
	},
}

var ledgerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the chain to its genesis state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		msg, err := c.ResetLedger(context.Background())
		if err != nil {
			return fmt.Errorf("reset ledger: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerOverviewCmd)
	ledgerCmd.AddCommand(ledgerRecordsCmd)
	ledgerCmd.AddCommand(ledgerVerifyCmd)
	ledgerCmd.AddCommand(ledgerTamperCmd)
	ledgerCmd.AddCommand(ledgerResetCmd)
}

// ── blacklist ────────────────────────────────────────────────────────────────

var (
	blacklistReason string
	blacklistStatus string
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage blacklisted institutions (Admin)",
}

var blacklistAddCmd = &cobra.Command{
	Use:   "add <institution>",
	Short: "Blacklist an issuing institution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		entry, err := c.AddBlacklist(context.Background(), args[0], blacklistReason)
		if err != nil {
			return fmt.Errorf("blacklist %s: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, entry)
		}
		fmt.Fprintf(out, "✓ Blacklisted %s\n", entry.EntityID)
		return nil
	},
}

var blacklistRevokeCmd = &cobra.Command{
	Use:   "revoke <institution>",
	Short: "Lift the active blacklisting of an institution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		if err := c.RevokeBlacklist(context.Background(), args[0]); err != nil {
			return fmt.Errorf("revoke %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Revoked blacklisting of %s\n", args[0])
		return nil
	},
}

var blacklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blacklist entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		entries, err := c.ListBlacklist(context.Background(), blacklistStatus)
		if err != nil {
			return fmt.Errorf("list blacklist: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, entries)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INSTITUTION\tSTATUS\tREASON\tSINCE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.EntityID, e.Status, e.Reason, e.CreatedAt.Format(time.DateOnly))
		}
		return w.Flush()
	},
}

func init() {
	blacklistAddCmd.Flags().StringVar(&blacklistReason, "reason", "", "why the institution is blacklisted")
	blacklistListCmd.Flags().StringVar(&blacklistStatus, "status", "", "filter by status: active or revoked")

	blacklistCmd.AddCommand(blacklistAddCmd)
	blacklistCmd.AddCommand(blacklistRevokeCmd)
	blacklistCmd.AddCommand(blacklistListCmd)
}

// ── dashboard ────────────────────────────────────────────────────────────────

var (
	dashboardLimit int
	dashboardDays  int
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Verification activity and statistics (Admin)",
}

var dashboardAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show the latest Invalid verifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		alerts, err := c.Alerts(context.Background(), dashboardLimit)
		if err != nil {
			return fmt.Errorf("alerts: %w", err)
		}
		return printLogEntries(cmd, alerts)
	},
}

var dashboardActivityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the latest verification attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		entries, err := c.Activity(context.Background(), dashboardLimit)
		if err != nil {
			return fmt.Errorf("activity: %w", err)
		}
		return printLogEntries(cmd, entries)
	},
}

var dashboardStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show verdict counts per day",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		stats, err := c.Stats(context.Background(), dashboardDays)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, stats)
		}
		fmt.Fprintf(out, "Total: %d  Valid: %d  Partially Valid: %d  Invalid: %d\n\n",
			stats.Total, stats.Valid, stats.PartiallyValid, stats.Invalid)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tVALID\tPARTIAL\tINVALID")
		for _, d := range stats.Daily {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", d.Date, d.Valid, d.PartiallyValid, d.Invalid)
		}
		return w.Flush()
	},
}

func init() {
	dashboardAlertsCmd.Flags().IntVar(&dashboardLimit, "limit", 0, "number of entries (server default when 0)")
	dashboardActivityCmd.Flags().IntVar(&dashboardLimit, "limit", 0, "number of entries (server default when 0)")
	dashboardStatsCmd.Flags().IntVar(&dashboardDays, "days", 0, "number of days (server default when 0)")

	dashboardCmd.AddCommand(dashboardAlertsCmd)
	dashboardCmd.AddCommand(dashboardActivityCmd)
	dashboardCmd.AddCommand(dashboardStatsCmd)
}

func printLogEntries(cmd *cobra.Command, entries []client.LogEntry) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, entries)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tCERTIFICATE\tSTATUS\tREASON")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.DateTime), e.CertificateID, e.Status, e.Reason)
	}
	return w.Flush()
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12] + "…"
}
