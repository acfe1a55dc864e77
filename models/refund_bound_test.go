package models_test

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/retail_backend/models"
	"github.com/shopspring/decimal"
)

// Sell 3, refund 2, then a second refund of 2 must be rejected because only
// 1 remains refundable; refunding that 1 succeeds and exhausts the receipt.
func TestRefundBoundAcrossMultipleRefunds(t *testing.T) {
	ctx := setupRetailTest(t)

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-100",
		Name:            "Instant Coffee 3in1",
		Price:           decimal.NewFromInt(1200),
		InitialQuantity: 10,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	sale, err := models.Checkout(ctx, &models.NewCheckout{
		Lines:       []models.NewCartLine{{Sku: "SKU-100", Qty: 3}},
		PaymentMode: models.PaymentModeCash,
		Tendered:    decimal.NewFromInt(3600),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	mustLedgerQuantity(t, ctx, product.ID, 7)

	first, err := models.RefundSale(ctx, &models.NewRefund{
		ReceiptNumber: sale.ReceiptNumber,
		Lines:         []models.NewRefundLine{{Sku: "SKU-100", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if first.RefundAmount.Cmp(decimal.NewFromInt(2400)) != 0 {
		t.Fatalf("refund amount: got %s", first.RefundAmount)
	}
	mustLedgerQuantity(t, ctx, product.ID, 9)

	_, err = models.RefundSale(ctx, &models.NewRefund{
		ReceiptNumber: sale.ReceiptNumber,
		Lines:         []models.NewRefundLine{{Sku: "SKU-100", Qty: 2}},
	})
	var overRefund *models.OverRefundError
	if !errors.As(err, &overRefund) {
		t.Fatalf("expected OverRefundError, got %v", err)
	}
	if overRefund.Sold != 3 || overRefund.AlreadyReturned != 2 || overRefund.Requested != 2 {
		t.Fatalf("wrong bound detail: %+v", overRefund)
	}
	mustLedgerQuantity(t, ctx, product.ID, 9)

	if _, err := models.RefundSale(ctx, &models.NewRefund{
		ReceiptNumber: sale.ReceiptNumber,
		Lines:         []models.NewRefundLine{{Sku: "SKU-100", Qty: 1}},
	}); err != nil {
		t.Fatalf("final refund of remaining unit: %v", err)
	}
	mustLedgerQuantity(t, ctx, product.ID, 10)

	refunds, err := models.GetRefundsForReceipt(ctx, sale.ReceiptNumber)
	if err != nil {
		t.Fatalf("GetRefundsForReceipt: %v", err)
	}
	if len(refunds) != 2 {
		t.Fatalf("refund count: got %d, want 2", len(refunds))
	}
}

// A refund is priced at the product's price at refund time, and refunding a
// sku the receipt never sold is an over-refund from zero.
func TestRefundPricedAtRefundTime(t *testing.T) {
	ctx := setupRetailTest(t)

	if _, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-400",
		Name:            "Notebook",
		Price:           decimal.NewFromInt(900),
		InitialQuantity: 4,
	}); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	other, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-401",
		Name:            "Pen",
		Price:           decimal.NewFromInt(200),
		InitialQuantity: 4,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	sale, err := models.Checkout(ctx, &models.NewCheckout{
		Lines:       []models.NewCartLine{{Sku: "SKU-400", Qty: 2}},
		PaymentMode: models.PaymentModeCard,
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	// Reprice after the sale.
	sold, err := models.GetProductBySku(ctx, "SKU-400")
	if err != nil {
		t.Fatalf("GetProductBySku: %v", err)
	}
	if _, err := models.UpdateProduct(ctx, sold.ID, &models.UpdateProductInput{
		Name:  sold.Name,
		Price: decimal.NewFromInt(1500),
	}); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}

	refund, err := models.RefundSale(ctx, &models.NewRefund{
		ReceiptNumber: sale.ReceiptNumber,
		Lines:         []models.NewRefundLine{{Sku: "SKU-400", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("RefundSale: %v", err)
	}
	if refund.RefundAmount.Cmp(decimal.NewFromInt(1500)) != 0 {
		t.Fatalf("refund priced at %s, want current price 1500", refund.RefundAmount)
	}

	_, err = models.RefundSale(ctx, &models.NewRefund{
		ReceiptNumber: sale.ReceiptNumber,
		Lines:         []models.NewRefundLine{{Sku: other.Sku, Qty: 1}},
	})
	var overRefund *models.OverRefundError
	if !errors.As(err, &overRefund) {
		t.Fatalf("expected OverRefundError for unsold sku, got %v", err)
	}
	if overRefund.Sold != 0 {
		t.Fatalf("unsold sku should report sold=0: %+v", overRefund)
	}
}
