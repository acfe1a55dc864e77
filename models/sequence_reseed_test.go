package models_test

import (
	"testing"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
)

// A stale or missing redis counter must reseed from the DB max instead of
// handing out a number the pos_sales table already holds. A counter forced
// to -1 makes the next INCR read 0, the same value a missing client yields.
func TestSequenceReseedsFromStaleCounter(t *testing.T) {
	ctx := setupRetailTest(t)

	if _, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-SEQ",
		Name:            "Sequence Item",
		Price:           decimal.NewFromInt(100),
		InitialQuantity: 10,
	}); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	first, err := models.Checkout(ctx, &models.NewCheckout{
		Lines:       []models.NewCartLine{{Sku: "SKU-SEQ", Qty: 1}},
		PaymentMode: models.PaymentModeCash,
		Tendered:    decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if first.SequenceNo != 1 {
		t.Fatalf("first sequence = %d, want 1", first.SequenceNo)
	}

	if err := config.SetRedisValue("possale_seq", "-1", 0); err != nil {
		t.Fatalf("SetRedisValue: %v", err)
	}

	seqNo, err := utils.GetSequence[models.PosSale](ctx)
	if err != nil {
		t.Fatalf("GetSequence: %v", err)
	}
	if seqNo != 2 {
		t.Fatalf("sequence after stale counter = %d, want 2", seqNo)
	}

	// A flushed counter reseeds the same way through the INCR-to-1 path.
	if err := config.RemoveRedisKey("possale_seq"); err != nil {
		t.Fatalf("RemoveRedisKey: %v", err)
	}
	second, err := models.Checkout(ctx, &models.NewCheckout{
		Lines:       []models.NewCartLine{{Sku: "SKU-SEQ", Qty: 1}},
		PaymentMode: models.PaymentModeCash,
		Tendered:    decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("Checkout after flush: %v", err)
	}
	if second.SequenceNo != 2 {
		t.Fatalf("sequence after flush = %d, want 2", second.SequenceNo)
	}
}
