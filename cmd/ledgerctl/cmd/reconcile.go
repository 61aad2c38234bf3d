package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/brc/transport-ledger/ledger"
	"github.com/brc/transport-ledger/posting"
)

// errInconsistent makes verify exit non-zero when postings have drifted.
var errInconsistent = errors.New("source postings are inconsistent")

func newStaleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stale",
		Short: "List sources flagged by failed reconciliations",
		Long: `List sources whose reversal succeeded but whose new postings could not be
applied. Balances touching their accounts are reported as stale until the
source is re-derived.

Example:
  ledgerctl stale`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *posting.Engine) error {
				flags, err := e.StaleSources(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(flags) == 0 {
					fmt.Fprintln(out, "No stale sources")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SOURCE\tACTION\tATTEMPTS\tFLAGGED\tACCOUNTS\tREASON")
				for _, f := range flags {
					keys := make([]string, 0, len(f.Keys))
					for _, k := range f.Keys {
						keys = append(keys, k.String())
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
						f.Source, f.Action, f.Attempts, f.FlaggedAt.Format(time.RFC3339),
						strings.Join(keys, ","), f.Reason)
				}
				return w.Flush()
			})
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <source-type> <id>",
		Short: "Compare one source's stored postings with a fresh derivation",
		Long: `Derive the postings a source document should own and compare them with
what is stored. Exits non-zero when they differ.

Example:
  ledgerctl verify bill 0f6c2d2e-...`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := ledger.ParseSourceType(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *posting.Engine) error {
				report, err := e.Verify(ctx, source, args[1])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, report.String())
				for _, en := range report.Missing {
					fmt.Fprintf(out, "  missing     %s %s %s\n", en.ID, en.Key(), en.Net().StringFixed(2))
				}
				for _, en := range report.Unexpected {
					fmt.Fprintf(out, "  unexpected  %s %s %s\n", en.ID, en.Key(), en.Net().StringFixed(2))
				}
				for _, d := range report.Drifted {
					fmt.Fprintf(out, "  drifted     %s %s -> %s\n", d.Stored.ID, d.Stored.Net().StringFixed(2), d.Expected.Net().StringFixed(2))
				}
				for _, eff := range report.Effects {
					fmt.Fprintf(out, "  effect      %s\n", eff)
				}
				if !report.Consistent {
					return errInconsistent
				}
				return nil
			})
		},
	}
}

func newRederiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rederive <source-type> <id>",
		Short: "Rebuild one source's postings from the stored document",
		Long: `Reverse whatever a source has posted and apply a fresh derivation in one
transaction. Clears the source's stale flag on success. A source that no
longer exists has its orphaned postings removed.

Example:
  ledgerctl rederive memo 3b1d9a70-...`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := ledger.ParseSourceType(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *posting.Engine) error {
				out, err := e.Rederive(ctx, source, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rederived %s/%s: %d postings, %d commission entries (removed %d, %d)\n",
					source, args[1], len(out.Postings), len(out.Commission), out.RemovedPostings, out.RemovedCommission)
				return nil
			})
		},
	}
}
