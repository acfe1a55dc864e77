package models_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/workflow"
	"github.com/shopspring/decimal"
)

// Two refunds of 2 race against a receipt that sold 3. The already-returned
// sum must be read under the product lock, not from a snapshot taken before
// it, so at most one refund can win.
func TestConcurrentRefundsRespectBound(t *testing.T) {
	ctx := setupRetailTest(t)

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-RACE",
		Name:            "Raced Item",
		Price:           decimal.NewFromInt(700),
		InitialQuantity: 10,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	sale, err := models.Checkout(ctx, &models.NewCheckout{
		Lines:       []models.NewCartLine{{Sku: "SKU-RACE", Qty: 3}},
		PaymentMode: models.PaymentModeCash,
		Tendered:    decimal.NewFromInt(2100),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	const attempts = 2
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := workflow.RunWithConflictRetry(ctx, "refund",
				func(ctx context.Context) (*models.Refund, error) {
					return models.RefundSale(ctx, &models.NewRefund{
						ReceiptNumber: sale.ReceiptNumber,
						Lines:         []models.NewRefundLine{{Sku: "SKU-RACE", Qty: 2}},
					})
				})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	refunded, rejected := 0, 0
	for err := range results {
		if err == nil {
			refunded++
			continue
		}
		var overRefund *models.OverRefundError
		if errors.As(err, &overRefund) {
			rejected++
			continue
		}
		t.Fatalf("unexpected refund error: %v", err)
	}

	if refunded != 1 || rejected != 1 {
		t.Fatalf("refunded=%d rejected=%d, want 1/1", refunded, rejected)
	}
	// 10 - 3 sold + 2 returned.
	mustLedgerQuantity(t, ctx, product.ID, 9)
}

// Two credit checkouts race for one customer whose limit only covers one of
// them. The outstanding balance is summed under the customer lock, so the
// second cart must see the first sale and be rejected.
func TestConcurrentCreditCheckoutsRespectLimit(t *testing.T) {
	ctx := setupRetailTest(t)

	if _, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:             "SKU-CRED",
		Name:            "Credit Item",
		Price:           decimal.NewFromInt(600),
		InitialQuantity: 10,
	}); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:        "Daw Khin",
		CreditLimit: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	const attempts = 2
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := workflow.RunWithConflictRetry(ctx, "checkout",
				func(ctx context.Context) (*models.PosSale, error) {
					return models.Checkout(ctx, &models.NewCheckout{
						Lines:       []models.NewCartLine{{Sku: "SKU-CRED", Qty: 1}},
						PaymentMode: models.PaymentModeCredit,
						CustomerId:  &customer.ID,
					})
				})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	sold, rejected := 0, 0
	for err := range results {
		if err == nil {
			sold++
			continue
		}
		var creditLimit *models.CreditLimitExceededError
		if errors.As(err, &creditLimit) {
			rejected++
			continue
		}
		t.Fatalf("unexpected checkout error: %v", err)
	}

	if sold != 1 || rejected != 1 {
		t.Fatalf("sold=%d rejected=%d, want 1/1", sold, rejected)
	}

	balance, err := models.GetCustomerBalance(ctx, customer.ID)
	if err != nil {
		t.Fatalf("GetCustomerBalance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("balance = %s, want 600", balance)
	}
}
