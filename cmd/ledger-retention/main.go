package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/workflow"
)

// Compacts ledger rows older than the retention window into one baseline
// row per product. The remaining ledger still sums to each product's
// quantity, so ledger-verify stays clean after a run.
func main() {
	days := flag.Int("days", 365, "purge movements older than this many days")
	dryRun := flag.Bool("dry-run", false, "report the cutoff without touching rows")
	flag.Parse()

	if *days < 30 {
		fmt.Fprintln(os.Stderr, "refusing a retention window under 30 days")
		os.Exit(2)
	}

	cutoff := time.Now().AddDate(0, 0, -*days)
	if *dryRun {
		fmt.Println("would compact movements before", cutoff.Format(time.RFC3339))
		return
	}

	config.ConnectDatabaseWithRetry()

	if err := workflow.RollupLedgerBefore(context.Background(), cutoff, "retention"); err != nil {
		fmt.Fprintln(os.Stderr, "rollup failed:", err)
		os.Exit(1)
	}
}
