package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Refund returns part of a past sale to stock. Each refund line becomes an
// IN/RETURN movement linked to the original sale, and the sum of returns
// per sku can never exceed the quantity the receipt sold.
type Refund struct {
	ID           int             `gorm:"primary_key" json:"id"`
	PosSaleId    int             `gorm:"index;not null" json:"pos_sale_id"`
	PosSale      *PosSale        `json:"pos_sale,omitempty"`
	RefundAmount decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"refund_amount"`
	Reason       string          `gorm:"type:text;default:null" json:"reason"`
	ActorName    string          `gorm:"size:255;not null" json:"actor_name"`
	RefundedAt   time.Time       `gorm:"autoCreateTime" json:"refunded_at"`

	Details []RefundDetail `json:"details"`
}

type RefundDetail struct {
	ID        int             `gorm:"primary_key" json:"id"`
	RefundId  int             `gorm:"index;not null" json:"refund_id"`
	ProductId int             `gorm:"not null" json:"product_id"`
	Sku       string          `gorm:"size:100;not null" json:"sku"`
	Qty       int             `gorm:"not null" json:"qty"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
}

type NewRefundLine struct {
	Sku string `json:"sku" binding:"required"`
	Qty int    `json:"qty" binding:"required"`
}

type NewRefund struct {
	ReceiptNumber string          `json:"receipt_number" binding:"required"`
	Lines         []NewRefundLine `json:"lines" binding:"required,dive"`
	Reason        string          `json:"reason"`
}

func (input *NewRefund) validate() error {
	if len(input.Lines) == 0 {
		return errors.New("refund must contain at least one line")
	}
	seen := make(map[string]bool, len(input.Lines))
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return errors.New("refund qty must be positive")
		}
		if seen[line.Sku] {
			return errors.New("duplicate sku in refund: " + line.Sku)
		}
		seen[line.Sku] = true
	}
	return nil
}

// RefundSale refunds lines of a receipt. The over-refund bound is enforced
// per sku across ALL prior refunds of the same receipt: sold minus already
// returned, both derived from the sale's ledger rows, is the most a new
// refund can take. The return is priced at the product's price at refund
// time, for loss accounting.
func RefundSale(ctx context.Context, input *NewRefund) (*Refund, error) {
	db := config.GetDB()

	actor, err := actorNameFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	tx := db.Begin()

	var sale PosSale
	if err := tx.WithContext(ctx).Preload("Details").
		Where("receipt_number = ?", input.ReceiptNumber).
		First(&sale).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "receipt", Key: input.ReceiptNumber}
		}
		return nil, classifyTxError(err)
	}

	soldBySku := make(map[string]*PosSaleDetail, len(sale.Details))
	for i := range sale.Details {
		detail := &sale.Details[i]
		soldBySku[detail.Sku] = detail
	}

	productIds := make([]int, 0, len(input.Lines))
	for _, line := range input.Lines {
		detail, ok := soldBySku[line.Sku]
		if !ok {
			tx.Rollback()
			return nil, &OverRefundError{
				Sku:           line.Sku,
				ReceiptNumber: sale.ReceiptNumber,
				Sold:          0,
				Requested:     line.Qty,
			}
		}
		productIds = append(productIds, detail.ProductId)
	}

	// Product locks also serialize concurrent refunds of the same receipt,
	// so the already-returned sums below cannot race.
	products, err := lockProductsForUpdate(tx, ctx, productIds)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	refundAmount := decimal.Zero
	details := make([]RefundDetail, 0, len(input.Lines))
	movements := make([]movementInput, 0, len(input.Lines))
	for _, line := range input.Lines {
		saleDetail := soldBySku[line.Sku]
		product := products[saleDetail.ProductId]

		// Both sums come from the sale's own ledger rows, so the bound holds
		// across any number of partial refunds.
		sold, err := movementQtySum(tx, ctx, sale.ID, saleDetail.ProductId, MovementDirectionOut, MovementReasonSale)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		returned, err := movementQtySum(tx, ctx, sale.ID, saleDetail.ProductId, MovementDirectionIn, MovementReasonReturn)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		if returned+line.Qty > sold {
			tx.Rollback()
			return nil, &OverRefundError{
				Sku:             line.Sku,
				ReceiptNumber:   sale.ReceiptNumber,
				Sold:            sold,
				AlreadyReturned: returned,
				Requested:       line.Qty,
			}
		}

		// Priced at the product's price at refund time, not the sale's.
		refundAmount = refundAmount.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Qty))))
		details = append(details, RefundDetail{
			ProductId: saleDetail.ProductId,
			Sku:       saleDetail.Sku,
			Qty:       line.Qty,
			UnitPrice: product.Price,
		})
		movements = append(movements, movementInput{
			Direction: MovementDirectionIn,
			Reason:    MovementReasonReturn,
			Qty:       line.Qty,
			UnitPrice: decimal.NullDecimal{Decimal: product.Price, Valid: true},
			PosSaleId: &sale.ID,
			ActorName: actor,
			Note:      "refund of " + sale.ReceiptNumber,
		})
	}

	refund := Refund{
		PosSaleId:    sale.ID,
		RefundAmount: refundAmount,
		Reason:       input.Reason,
		ActorName:    actor,
		Details:      details,
	}
	if err := tx.WithContext(ctx).Create(&refund).Error; err != nil {
		tx.Rollback()
		return nil, classifyTxError(err)
	}

	for i := range movements {
		if _, err := recordMovement(tx, ctx, products[refund.Details[i].ProductId], movements[i]); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyTxError(err)
	}
	return &refund, nil
}

// movementQtySum is a locking read. The refund transaction's read view is
// created when the sale is loaded, before the product lock is acquired, so a
// plain SELECT here would not see returns a competing refund committed while
// we waited on that lock.
func movementQtySum(tx *gorm.DB, ctx context.Context, posSaleId, productId int, direction MovementDirection, reason MovementReason) (int, error) {
	var total *int
	if err := tx.WithContext(ctx).Model(&StockMovement{}).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Select("COALESCE(SUM(qty), 0)").
		Where("pos_sale_id = ? AND product_id = ? AND direction = ? AND reason = ?",
			posSaleId, productId, direction, reason).
		Scan(&total).Error; err != nil {
		return 0, classifyTxError(err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func GetRefundsForReceipt(ctx context.Context, receiptNumber string) ([]*Refund, error) {
	db := config.GetDB()

	sale, err := GetReceipt(ctx, receiptNumber)
	if err != nil {
		return nil, err
	}

	var refunds []*Refund
	if err := db.WithContext(ctx).Preload("Details").
		Where("pos_sale_id = ?", sale.ID).
		Order("refunded_at ASC, id ASC").
		Find(&refunds).Error; err != nil {
		return nil, err
	}
	return refunds, nil
}
