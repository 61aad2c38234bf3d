// Package cmd provides CLI commands for ledgerctl.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/brc/transport-ledger/config"
	"github.com/brc/transport-ledger/logging"
	"github.com/brc/transport-ledger/posting"
	"github.com/brc/transport-ledger/store"
)

// app carries the global flags and what they resolve to.
type app struct {
	cfgFile string
	debug   bool
	logger  *slog.Logger
}

// NewRootCmd builds the command tree. Each call returns an independent tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect and repair the transport ledger",
		Long: `ledgerctl reads balances and entries straight from the ledger store
and drives reconciliation for source documents.

It supports:
- Account balances and entry listings per ledger
- Outstanding balances for every account of a ledger
- Listing stale sources left by failed reconciliations
- Verifying one source's postings and re-deriving them

Example:
  ledgerctl balance --ledger party --key "Sharma Traders"
  ledgerctl entries --ledger vehicle_expense --key MH12AB1234
  ledgerctl verify bill 0f6c2d2e-...
  ledgerctl stale`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "info"
			if a.debug {
				level = "debug"
			}
			a.logger = logging.New(logging.Config{Level: level, Format: "text", Output: cmd.ErrOrStderr()})
			slog.SetDefault(a.logger)
		},
	}

	// Global flags
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: built-in defaults, .env and BRC_* variables)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newBalanceCmd(a),
		newEntriesCmd(a),
		newOutstandingCmd(a),
		newStaleCmd(a),
		newVerifyCmd(a),
		newRederiveCmd(a),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// withEngine opens the configured store for the duration of fn.
func (a *app) withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *posting.Engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := a.logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger.Debug("opening store", "driver", cfg.Database.Driver)

	backend, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := backend.Close(ctx); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	engine, err := posting.NewEngine(backend.Store,
		posting.WithLogger(logger),
		posting.WithMirrorGeneralLedger(cfg.Posting.MirrorGeneralLedger),
	)
	if err != nil {
		return fmt.Errorf("failed to build posting engine: %w", err)
	}
	return fn(ctx, engine)
}
