package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement is the append-only ledger row: the single source of truth
// for why a product's quantity ever changed. Rows are never updated or
// deleted after creation (the retention rollup in cmd/ledger-retention is a
// storage operation, not a ledger operation).
type StockMovement struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	ProductId       int                 `gorm:"index:idx_movement_product_date,priority:1;not null" json:"product_id"`
	Direction       MovementDirection   `gorm:"type:enum('IN','OUT');not null" json:"direction"`
	Reason          MovementReason      `gorm:"type:enum('SALE','PURCHASE_ORDER','DAMAGE','INTERNAL_USE','CORRECTION','RETURN','INITIAL_STOCK','OTHER');not null" json:"reason"`
	Qty             int                 `gorm:"not null" json:"qty"`
	UnitPrice       decimal.NullDecimal `gorm:"type:decimal(20,4);default:null" json:"unit_price"`
	PosSaleId       *int                `gorm:"index;default:null" json:"pos_sale_id"`
	PurchaseOrderId *int                `gorm:"index;default:null" json:"purchase_order_id"`
	ActorName       string              `gorm:"size:255;not null" json:"actor_name"`
	Note            string              `gorm:"type:text;default:null" json:"note"`
	CreatedAt       time.Time           `gorm:"index:idx_movement_product_date,priority:2;autoCreateTime" json:"created_at"`
}

type movementInput struct {
	Direction       MovementDirection
	Reason          MovementReason
	Qty             int
	UnitPrice       decimal.NullDecimal
	PosSaleId       *int
	PurchaseOrderId *int
	ActorName       string
	Note            string
}

// recordMovement appends one ledger row and moves Product.quantity in the
// same transaction. The caller must already hold the product's row lock and,
// for OUT movements, must have validated sufficiency under that lock; the
// negative-quantity check here is a last-resort contract guard, not a user
// error path. IN/PURCHASE_ORDER also stamps last_restock_at.
func recordMovement(tx *gorm.DB, ctx context.Context, product *Product, input movementInput) (*StockMovement, error) {
	if input.Qty <= 0 {
		return nil, errors.New("movement qty must be positive")
	}
	if !input.Direction.Valid() {
		return nil, errors.New("invalid movement direction")
	}
	if !input.Reason.Valid() {
		return nil, errors.New("invalid movement reason")
	}
	if input.ActorName == "" {
		return nil, errors.New("movement actor is required")
	}

	newQty := product.Quantity
	if input.Direction == MovementDirectionIn {
		newQty += input.Qty
	} else {
		newQty -= input.Qty
	}
	if newQty < 0 {
		return nil, &InsufficientStockError{
			Sku:       product.Sku,
			Requested: input.Qty,
			Available: product.Quantity,
		}
	}

	movement := StockMovement{
		ProductId:       product.ID,
		Direction:       input.Direction,
		Reason:          input.Reason,
		Qty:             input.Qty,
		UnitPrice:       input.UnitPrice,
		PosSaleId:       input.PosSaleId,
		PurchaseOrderId: input.PurchaseOrderId,
		ActorName:       input.ActorName,
		Note:            input.Note,
	}
	if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
		return nil, classifyTxError(err)
	}

	updates := map[string]interface{}{"quantity": newQty}
	if input.Direction == MovementDirectionIn && input.Reason == MovementReasonPurchaseOrder {
		now := time.Now()
		updates["last_restock_at"] = now
		product.LastRestockAt = &now
	}
	if err := tx.WithContext(ctx).Model(&Product{}).
		Where("id = ?", product.ID).
		Updates(updates).Error; err != nil {
		return nil, classifyTxError(err)
	}
	product.Quantity = newQty

	return &movement, nil
}

type NewStockAdjustment struct {
	ProductId int               `json:"product_id" binding:"required"`
	Direction MovementDirection `json:"direction" binding:"required"`
	Reason    MovementReason    `json:"reason" binding:"required"`
	Qty       int               `json:"qty" binding:"required"`
	Note      string            `json:"note"`
}

// CreateStockAdjustment records a manual correction (damage, internal use,
// correction, initial stock, other) as a movement of its own transaction.
func CreateStockAdjustment(ctx context.Context, input *NewStockAdjustment) (*StockMovement, error) {
	db := config.GetDB()

	actor, err := actorNameFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !input.Reason.AdjustmentReason() {
		return nil, errors.New("reason is reserved for checkout, receiving or refund flows")
	}
	if input.Qty <= 0 {
		return nil, errors.New("qty must be positive")
	}

	tx := db.Begin()

	product, err := lockProductForUpdate(tx, ctx, input.ProductId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if input.Direction == MovementDirectionOut && input.Qty > product.Quantity {
		tx.Rollback()
		return nil, &InsufficientStockError{
			Sku:       product.Sku,
			Requested: input.Qty,
			Available: product.Quantity,
		}
	}

	// Damage realizes a loss, so it snapshots the current price; the other
	// adjustment reasons carry no price.
	var unitPrice decimal.NullDecimal
	if input.Reason == MovementReasonDamage {
		unitPrice = decimal.NullDecimal{Decimal: product.Price, Valid: true}
	}

	movement, err := recordMovement(tx, ctx, product, movementInput{
		Direction: input.Direction,
		Reason:    input.Reason,
		Qty:       input.Qty,
		UnitPrice: unitPrice,
		ActorName: actor,
		Note:      input.Note,
	})
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyTxError(err)
	}
	return movement, nil
}

type StockMovementFilter struct {
	ProductId *int
	Sku       *string
	Reason    *MovementReason
	Actor     *string
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int
}

func GetStockMovements(ctx context.Context, filter StockMovementFilter) ([]*StockMovement, error) {
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Model(&StockMovement{})
	if filter.ProductId != nil {
		dbCtx = dbCtx.Where("product_id = ?", *filter.ProductId)
	}
	if filter.Sku != nil && *filter.Sku != "" {
		product, err := GetProductBySku(ctx, *filter.Sku)
		if err != nil {
			return nil, err
		}
		dbCtx = dbCtx.Where("product_id = ?", product.ID)
	}
	if filter.Reason != nil {
		dbCtx = dbCtx.Where("reason = ?", *filter.Reason)
	}
	if filter.Actor != nil && *filter.Actor != "" {
		dbCtx = dbCtx.Where("actor_name = ?", *filter.Actor)
	}
	if filter.DateFrom != nil {
		dbCtx = dbCtx.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		dbCtx = dbCtx.Where("created_at < ?", *filter.DateTo)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var movements []*StockMovement
	if err := dbCtx.Order("created_at DESC, id DESC").Limit(limit).Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// LedgerQuantity recomputes a product's on-hand quantity from its movements.
// Used by cmd/ledger-verify and tests; Product.quantity must always agree.
func LedgerQuantity(ctx context.Context, productId int) (int, error) {
	db := config.GetDB()

	var total *int
	if err := db.WithContext(ctx).Model(&StockMovement{}).
		Select("COALESCE(SUM(CASE WHEN direction = 'IN' THEN qty ELSE -qty END), 0)").
		Where("product_id = ?", productId).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
