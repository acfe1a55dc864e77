package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/workflow"
)

// Recomputes every product's on-hand quantity from the movement ledger and
// exits non-zero when any stored quantity disagrees. Meant for cron.
func main() {
	config.ConnectDatabaseWithRetry()

	drifts, err := workflow.VerifyLedger(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "verify failed:", err)
		os.Exit(2)
	}
	if len(drifts) > 0 {
		for _, d := range drifts {
			fmt.Printf("DRIFT %s stored=%d ledger=%d\n", d.Sku, d.StoredQuantity, d.LedgerQuantity)
		}
		os.Exit(1)
	}
	fmt.Println("ledger clean")
}
