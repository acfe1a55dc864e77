package models_test

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/retail_backend/models"
	"github.com/shopspring/decimal"
)

func TestCheckoutMovesStockAndKeepsLedgerBalanced(t *testing.T) {
	ctx := setupRetailTest(t)

	coffee, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-100",
		Name:            "Instant Coffee 3in1",
		CategoryName:    "Beverages",
		Price:           decimal.NewFromInt(1200),
		InitialQuantity: 10,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	water, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-101",
		Name:            "Drinking Water 1L",
		Price:           decimal.NewFromInt(500),
		InitialQuantity: 20,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	// Initial stock is itself a ledger row.
	mustLedgerQuantity(t, ctx, coffee.ID, 10)

	sale, err := models.Checkout(ctx, &models.NewCheckout{
		Lines: []models.NewCartLine{
			{Sku: "SKU-100", Qty: 3},
			{Sku: "SKU-101", Qty: 2},
		},
		PaymentMode: models.PaymentModeCash,
		Tendered:    decimal.NewFromInt(5000),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	wantTotal := decimal.NewFromInt(3*1200 + 2*500)
	if sale.Total.Cmp(wantTotal) != 0 {
		t.Fatalf("total: got %s, want %s", sale.Total, wantTotal)
	}
	if sale.Change.Cmp(decimal.NewFromInt(5000).Sub(wantTotal)) != 0 {
		t.Fatalf("change: got %s", sale.Change)
	}
	if len(sale.Details) != 2 {
		t.Fatalf("details: got %d lines", len(sale.Details))
	}
	if sale.ReceiptNumber == "" || sale.ReceiptNumber[0] != 'R' {
		t.Fatalf("unexpected receipt number %q", sale.ReceiptNumber)
	}

	mustLedgerQuantity(t, ctx, coffee.ID, 7)
	mustLedgerQuantity(t, ctx, water.ID, 18)

	// One OUT/SALE movement per line, linked to the sale.
	saleId := sale.ID
	movements, err := models.GetStockMovements(ctx, models.StockMovementFilter{ProductId: &coffee.ID})
	if err != nil {
		t.Fatalf("GetStockMovements: %v", err)
	}
	foundSaleRow := false
	for _, m := range movements {
		if m.PosSaleId != nil && *m.PosSaleId == saleId {
			foundSaleRow = true
			if m.Direction != models.MovementDirectionOut || m.Reason != models.MovementReasonSale {
				t.Fatalf("sale movement has wrong kind: %+v", m)
			}
			if !m.UnitPrice.Valid || m.UnitPrice.Decimal.Cmp(decimal.NewFromInt(1200)) != 0 {
				t.Fatalf("sale movement price snapshot: %+v", m.UnitPrice)
			}
		}
	}
	if !foundSaleRow {
		t.Fatalf("no movement row linked to sale %d", saleId)
	}

	got, err := models.GetReceipt(ctx, sale.ReceiptNumber)
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if got.ID != sale.ID || len(got.Details) != 2 {
		t.Fatalf("receipt lookup mismatch: %+v", got)
	}
}

func TestCheckoutRejectionsLeaveNoTrace(t *testing.T) {
	ctx := setupRetailTest(t)

	soap, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-200",
		Name:            "Laundry Soap Bar",
		Price:           decimal.NewFromInt(800),
		InitialQuantity: 5,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	book, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-300",
		Name:            "Exercise Book A5",
		Price:           decimal.NewFromInt(350),
		InitialQuantity: 100,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	// Second line oversells; the whole cart must fail, including the first
	// line that on its own would have succeeded.
	_, err = models.Checkout(ctx, &models.NewCheckout{
		Lines: []models.NewCartLine{
			{Sku: "SKU-300", Qty: 10},
			{Sku: "SKU-200", Qty: 6},
		},
		PaymentMode: models.PaymentModeCash,
		Tendered:    decimal.NewFromInt(100000),
	})
	var insufficientStock *models.InsufficientStockError
	if !errors.As(err, &insufficientStock) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficientStock.Sku != "SKU-200" || insufficientStock.Available != 5 {
		t.Fatalf("wrong error detail: %+v", insufficientStock)
	}

	mustLedgerQuantity(t, ctx, soap.ID, 5)
	mustLedgerQuantity(t, ctx, book.ID, 100)

	// Short cash also rejects the whole cart.
	_, err = models.Checkout(ctx, &models.NewCheckout{
		Lines:       []models.NewCartLine{{Sku: "SKU-200", Qty: 2}},
		PaymentMode: models.PaymentModeCash,
		Tendered:    decimal.NewFromInt(1000),
	})
	var insufficientPayment *models.InsufficientPaymentError
	if !errors.As(err, &insufficientPayment) {
		t.Fatalf("expected InsufficientPaymentError, got %v", err)
	}
	mustLedgerQuantity(t, ctx, soap.ID, 5)

	sales, err := models.GetPosSales(ctx, models.PosSaleFilter{})
	if err != nil {
		t.Fatalf("GetPosSales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("rejected checkouts left %d sale rows", len(sales))
	}
}
