package models_test

import (
	"testing"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestLedgerVerifyDetectsDrift(t *testing.T) {
	ctx := setupRetailTest(t)

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-V1",
		Name:            "Verified Item",
		Price:           decimal.NewFromInt(100),
		InitialQuantity: 8,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	drifts, err := workflow.VerifyLedger(ctx)
	if err != nil {
		t.Fatalf("VerifyLedger: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("clean books reported drift: %+v", drifts)
	}

	// Corrupt the cached quantity directly, bypassing the ledger.
	db := config.GetDB()
	if err := db.Model(&models.Product{}).
		Where("id = ?", product.ID).
		Update("quantity", 99).Error; err != nil {
		t.Fatalf("corrupt quantity: %v", err)
	}

	drifts, err = workflow.VerifyLedger(ctx)
	if err != nil {
		t.Fatalf("VerifyLedger: %v", err)
	}
	if len(drifts) != 1 {
		t.Fatalf("drift count: got %d, want 1", len(drifts))
	}
	if drifts[0].Sku != "SKU-V1" || drifts[0].StoredQuantity != 99 || drifts[0].LedgerQuantity != 8 {
		t.Fatalf("drift detail: %+v", drifts[0])
	}
}

func TestLedgerRetentionRollupPreservesQuantities(t *testing.T) {
	ctx := setupRetailTest(t)

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-R1",
		Name:            "Archived Item",
		Price:           decimal.NewFromInt(700),
		InitialQuantity: 50,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	// Some trade on top of the initial stock.
	if _, err := models.Checkout(ctx, &models.NewCheckout{
		Lines:       []models.NewCartLine{{Sku: "SKU-R1", Qty: 12}},
		PaymentMode: models.PaymentModeCard,
	}); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	mustLedgerQuantity(t, ctx, product.ID, 38)

	// Age every row into the purge window, then roll up.
	db := config.GetDB()
	old := time.Now().AddDate(0, 0, -400)
	if err := db.Model(&models.StockMovement{}).
		Where("product_id = ?", product.ID).
		Update("created_at", old).Error; err != nil {
		t.Fatalf("backdate movements: %v", err)
	}

	cutoff := time.Now().AddDate(0, 0, -365)
	if err := workflow.RollupLedgerBefore(ctx, cutoff, "retention"); err != nil {
		t.Fatalf("RollupLedgerBefore: %v", err)
	}

	// One baseline row survives and the invariant still holds.
	mustLedgerQuantity(t, ctx, product.ID, 38)
	movements, err := models.GetStockMovements(ctx, models.StockMovementFilter{ProductId: &product.ID})
	if err != nil {
		t.Fatalf("GetStockMovements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("movement count after rollup: got %d, want 1", len(movements))
	}
	baseline := movements[0]
	if baseline.Reason != models.MovementReasonInitialStock || baseline.Direction != models.MovementDirectionIn || baseline.Qty != 38 {
		t.Fatalf("baseline row: %+v", baseline)
	}

	drifts, err := workflow.VerifyLedger(ctx)
	if err != nil {
		t.Fatalf("VerifyLedger: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("rollup introduced drift: %+v", drifts)
	}
}
