// Package main is the entry point for the ledgerctl CLI.
package main

import (
	"os"

	"github.com/brc/transport-ledger/cmd/ledgerctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
