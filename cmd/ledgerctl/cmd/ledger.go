package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brc/transport-ledger/ledger"
	"github.com/brc/transport-ledger/posting"
)

func newBalanceCmd(a *app) *cobra.Command {
	var (
		ledgerType string
		key        string
		from, to   string
	)
	c := &cobra.Command{
		Use:   "balance",
		Short: "Show the balance of one account",
		Long: `Fold the entries of one account (or of every account of a ledger when
--key is omitted) into debit, credit and balance totals.

Example:
  ledgerctl balance --ledger party --key "Sharma Traders"
  ledgerctl balance --ledger vehicle_income --key MH12AB1234 --from 2025-04-01 --to 2025-04-30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := ledger.ParseLedgerType(ledgerType)
			if err != nil {
				return err
			}
			rng, err := parseRange(from, to)
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *posting.Engine) error {
				view, err := e.GetBalance(ctx, lt, key, rng)
				if err != nil {
					return err
				}
				printBalance(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
	c.Flags().StringVar(&ledgerType, "ledger", "", "ledger type (vehicle_income, vehicle_expense, party, supplier, commission, general)")
	c.Flags().StringVar(&key, "key", "", "account key (vehicle no., party, supplier or account name)")
	c.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	c.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	_ = c.MarkFlagRequired("ledger")
	return c
}

func newEntriesCmd(a *app) *cobra.Command {
	var (
		ledgerType string
		key        string
		sourceType string
		sourceID   string
	)
	c := &cobra.Command{
		Use:   "entries",
		Short: "List ledger entries with running balances",
		Long: `List entries sorted by date, filtered by ledger, account and source.

Example:
  ledgerctl entries --ledger party --key "Sharma Traders"
  ledgerctl entries --source-type bill --source-id 0f6c2d2e-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ledger.EntryFilter{ReferenceName: key, SourceID: sourceID}
			if ledgerType != "" {
				lt, err := ledger.ParseLedgerType(ledgerType)
				if err != nil {
					return err
				}
				filter.LedgerType = lt
			}
			if sourceType != "" {
				st, err := ledger.ParseSourceType(sourceType)
				if err != nil {
					return err
				}
				filter.SourceType = st
			}
			return a.withEngine(cmd, func(ctx context.Context, e *posting.Engine) error {
				entries, err := e.ListEntries(ctx, filter)
				if err != nil {
					return err
				}
				printEntries(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	c.Flags().StringVar(&ledgerType, "ledger", "", "ledger type")
	c.Flags().StringVar(&key, "key", "", "account key")
	c.Flags().StringVar(&sourceType, "source-type", "", "source type (loading_slip, bill, memo, banking, cashbook, fuel_transaction)")
	c.Flags().StringVar(&sourceID, "source-id", "", "source document id")
	return c
}

func newOutstandingCmd(a *app) *cobra.Command {
	var ledgerType string
	c := &cobra.Command{
		Use:   "outstanding",
		Short: "Show the balance of every account of a ledger",
		Long: `Example:
  ledgerctl outstanding --ledger supplier`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := ledger.ParseLedgerType(ledgerType)
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *posting.Engine) error {
				views, err := e.Outstanding(ctx, lt)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tDEBIT\tCREDIT\tBALANCE\tENTRIES\t")
				for _, v := range views {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
						v.Key, v.TotalDebit.StringFixed(2), v.TotalCredit.StringFixed(2),
						v.Balance.StringFixed(2), v.EntryCount, staleMark(v.Stale))
				}
				return w.Flush()
			})
		},
	}
	c.Flags().StringVar(&ledgerType, "ledger", "", "ledger type")
	_ = c.MarkFlagRequired("ledger")
	return c
}

// =============================================================================
// OUTPUT
// =============================================================================

func printBalance(out io.Writer, v posting.BalanceView) {
	key := v.Key
	if key == "" {
		key = "(all accounts)"
	}
	fmt.Fprintf(out, "Ledger:   %s\n", v.LedgerType)
	fmt.Fprintf(out, "Account:  %s\n", key)
	fmt.Fprintf(out, "Debit:    %s\n", v.TotalDebit.StringFixed(2))
	fmt.Fprintf(out, "Credit:   %s\n", v.TotalCredit.StringFixed(2))
	fmt.Fprintf(out, "Balance:  %s\n", v.Balance.StringFixed(2))
	fmt.Fprintf(out, "Entries:  %d\n", v.EntryCount)
	if v.Stale {
		fmt.Fprintln(out, "WARNING: a failed reconciliation touches this account; run `ledgerctl stale`")
	}
}

func printEntries(out io.Writer, entries []ledger.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tLEDGER\tACCOUNT\tSOURCE\tDEBIT\tCREDIT\tBALANCE\tDESCRIPTION")
	for _, en := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s/%s\t%s\t%s\t%s\t%s\n",
			en.Date.Format(ledger.DateLayout), en.LedgerType, en.ReferenceName,
			en.SourceType, en.SourceID,
			en.Debit.StringFixed(2), en.Credit.StringFixed(2), en.Balance.StringFixed(2),
			en.Description)
	}
	w.Flush()
}

func staleMark(stale bool) string {
	if stale {
		return "STALE"
	}
	return ""
}

func parseRange(from, to string) (*ledger.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	var rng ledger.DateRange
	var err error
	if from != "" {
		if rng.From, err = ledger.ParseDate(from); err != nil {
			return nil, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if to != "" {
		if rng.To, err = ledger.ParseDate(to); err != nil {
			return nil, fmt.Errorf("invalid --to: %w", err)
		}
	}
	return &rng, rng.Validate()
}
