package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/workflow"
)

// Scans for products at or below their reorder threshold and emits one
// alert log line per product. A redis lock makes concurrent runs a no-op,
// so this can be scheduled on every instance.
func main() {
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	if err := workflow.SendLowStockAlerts(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "low stock scan failed:", err)
		os.Exit(1)
	}
}
