package models_test

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/retail_backend/models"
	"github.com/shopspring/decimal"
)

// End-to-end till scenario: stock drains through checkouts, the low-stock
// set flips when the threshold is crossed, a refund tops it back up, and the
// refund bound finally closes the receipt.
func TestTillScenarioWithLowStockAndRefunds(t *testing.T) {
	ctx := setupRetailTest(t)

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:              "SKU-100",
		Name:             "Instant Coffee 3in1",
		Price:            decimal.NewFromInt(100),
		InitialQuantity:  10,
		ReorderThreshold: 5,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	mustNotLowStock := func(step string) {
		t.Helper()
		low, err := models.LowStockProducts(ctx)
		if err != nil {
			t.Fatalf("%s: LowStockProducts: %v", step, err)
		}
		for _, p := range low {
			if p.ID == product.ID {
				t.Fatalf("%s: product unexpectedly in low-stock set", step)
			}
		}
	}
	mustLowStock := func(step string) {
		t.Helper()
		low, err := models.LowStockProducts(ctx)
		if err != nil {
			t.Fatalf("%s: LowStockProducts: %v", step, err)
		}
		for _, p := range low {
			if p.ID == product.ID {
				return
			}
		}
		t.Fatalf("%s: product missing from low-stock set", step)
	}

	// 10 on hand, threshold 5: healthy.
	mustNotLowStock("start")

	if _, err := models.Checkout(ctx, &models.NewCheckout{
		Lines:       []models.NewCartLine{{Sku: "SKU-100", Qty: 4}},
		PaymentMode: models.PaymentModeCash,
		Tendered:    decimal.NewFromInt(500),
	}); err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	mustLedgerQuantity(t, ctx, product.ID, 6)
	mustNotLowStock("after first sale")

	second, err := models.Checkout(ctx, &models.NewCheckout{
		Lines:       []models.NewCartLine{{Sku: "SKU-100", Qty: 3}},
		PaymentMode: models.PaymentModeCash,
		Tendered:    decimal.NewFromInt(300),
	})
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	mustLedgerQuantity(t, ctx, product.ID, 3)
	mustLowStock("after second sale")

	if _, err := models.RefundSale(ctx, &models.NewRefund{
		ReceiptNumber: second.ReceiptNumber,
		Lines:         []models.NewRefundLine{{Sku: "SKU-100", Qty: 2}},
	}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	mustLedgerQuantity(t, ctx, product.ID, 5)
	mustLowStock("after refund, still at threshold")

	// The second receipt sold 3; 2 came back; asking for 6 more would take
	// the total to 8.
	_, err = models.RefundSale(ctx, &models.NewRefund{
		ReceiptNumber: second.ReceiptNumber,
		Lines:         []models.NewRefundLine{{Sku: "SKU-100", Qty: 6}},
	})
	var overRefund *models.OverRefundError
	if !errors.As(err, &overRefund) {
		t.Fatalf("expected OverRefundError, got %v", err)
	}
	mustLedgerQuantity(t, ctx, product.ID, 5)
}
