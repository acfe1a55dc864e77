package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseOrder tracks incoming stock from a supplier through the
// PENDING, ARRIVED, RECEIVED lifecycle. Stock only moves on receive:
// one IN/PURCHASE_ORDER movement per detail line.
type PurchaseOrder struct {
	ID          int                 `gorm:"primary_key" json:"id"`
	OrderNumber string              `gorm:"type:varchar(20);uniqueIndex;not null" json:"order_number"`
	SequenceNo  int                 `gorm:"not null" json:"sequence_no"`
	SupplierId  *int                `gorm:"index;default:null" json:"supplier_id"`
	Supplier    *Supplier           `json:"supplier,omitempty"`
	Status      PurchaseOrderStatus `gorm:"type:enum('PENDING','ARRIVED','RECEIVED','CANCELED');not null;default:'PENDING'" json:"status"`
	Total       decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"total"`
	Note        string              `gorm:"type:text;default:null" json:"note"`
	PlacedBy    string              `gorm:"size:255;not null" json:"placed_by"`
	ArrivedAt   *time.Time          `gorm:"default:null" json:"arrived_at"`
	ReceivedAt  *time.Time          `gorm:"default:null" json:"received_at"`
	CanceledAt  *time.Time          `gorm:"default:null" json:"canceled_at"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`

	Details []PurchaseOrderDetail `json:"details"`
}

type PurchaseOrderDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	ProductId       int             `gorm:"not null" json:"product_id"`
	Sku             string          `gorm:"size:100;not null" json:"sku"`
	Qty             int             `gorm:"not null" json:"qty"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
}

type NewPurchaseOrderLine struct {
	ProductId int             `json:"product_id" binding:"required"`
	Qty       int             `json:"qty" binding:"required"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type NewPurchaseOrder struct {
	SupplierId *int                   `json:"supplier_id"`
	Lines      []NewPurchaseOrderLine `json:"lines" binding:"required,dive"`
	Note       string                 `json:"note"`
}

func (input *NewPurchaseOrder) validate(ctx context.Context) error {
	if len(input.Lines) == 0 {
		return errors.New("order must contain at least one line")
	}
	seen := make(map[int]bool, len(input.Lines))
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return errors.New("line qty must be positive")
		}
		if line.UnitCost.IsNegative() {
			return errors.New("unit cost cannot be negative")
		}
		if seen[line.ProductId] {
			return fmt.Errorf("duplicate product in order: %d", line.ProductId)
		}
		seen[line.ProductId] = true
	}
	if input.SupplierId != nil {
		if err := utils.ValidateResourceId[Supplier](ctx, *input.SupplierId); err != nil {
			return &NotFoundError{Kind: "supplier", Key: itoa(*input.SupplierId)}
		}
	}
	return nil
}

func PlaceOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()

	actor, err := actorNameFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	tx := db.Begin()

	total := decimal.Zero
	details := make([]PurchaseOrderDetail, 0, len(input.Lines))
	for _, line := range input.Lines {
		var product Product
		if err := tx.WithContext(ctx).Select("id", "sku").
			Where("id = ?", line.ProductId).First(&product).Error; err != nil {
			tx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &NotFoundError{Kind: "product", Key: itoa(line.ProductId)}
			}
			return nil, classifyTxError(err)
		}
		total = total.Add(line.UnitCost.Mul(decimal.NewFromInt(int64(line.Qty))))
		details = append(details, PurchaseOrderDetail{
			ProductId: product.ID,
			Sku:       product.Sku,
			Qty:       line.Qty,
			UnitCost:  line.UnitCost,
		})
	}

	sequenceNo, err := utils.GetSequence[PurchaseOrder](ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	order := PurchaseOrder{
		OrderNumber: fmt.Sprintf("PO-%06d", sequenceNo),
		SequenceNo:  int(sequenceNo),
		SupplierId:  input.SupplierId,
		Status:      PurchaseOrderStatusPending,
		Total:       total,
		Note:        input.Note,
		PlacedBy:    actor,
		Details:     details,
	}
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, classifyTxError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyTxError(err)
	}
	return &order, nil
}

// lockOrderForUpdate loads the order with its details under a row lock so
// concurrent transitions on the same order serialize.
func lockOrderForUpdate(tx *gorm.DB, ctx context.Context, id int) (*PurchaseOrder, error) {
	var order PurchaseOrder
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "purchase order", Key: itoa(id)}
		}
		return nil, classifyTxError(err)
	}
	if err := tx.WithContext(ctx).
		Where("purchase_order_id = ?", order.ID).
		Order("product_id").Find(&order.Details).Error; err != nil {
		return nil, classifyTxError(err)
	}
	return &order, nil
}

func (order *PurchaseOrder) transitionTo(target PurchaseOrderStatus) error {
	if !order.Status.CanTransitionTo(target) {
		return &InvalidTransitionError{
			OrderNumber: order.OrderNumber,
			From:        order.Status,
			To:          target,
		}
	}
	order.Status = target
	return nil
}

// MarkArrived records that the shipment is physically present. No stock
// moves yet; quantities are only trusted once receiving counts them.
func MarkArrived(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	if _, err := actorNameFromContext(ctx); err != nil {
		return nil, err
	}

	tx := db.Begin()

	order, err := lockOrderForUpdate(tx, ctx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := order.transitionTo(PurchaseOrderStatusArrived); err != nil {
		tx.Rollback()
		return nil, err
	}
	now := time.Now()
	order.ArrivedAt = &now
	if err := tx.WithContext(ctx).Model(order).
		Updates(map[string]interface{}{"status": order.Status, "arrived_at": now}).Error; err != nil {
		tx.Rollback()
		return nil, classifyTxError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyTxError(err)
	}
	return order, nil
}

type ReceiveLine struct {
	ProductId   int `json:"product_id" binding:"required"`
	ReceivedQty int `json:"received_qty"`
}

type ReceiveOrderInput struct {
	// Lines overrides the received quantity per product. Products not
	// listed receive their ordered quantity in full.
	Lines []ReceiveLine `json:"lines"`
}

// ReceiveOrder books the ordered stock in. Receiving an already RECEIVED
// order is a no-op returning the existing order, so a retried request
// cannot double-book stock.
func ReceiveOrder(ctx context.Context, id int, input *ReceiveOrderInput) (*PurchaseOrder, error) {
	db := config.GetDB()

	actor, err := actorNameFromContext(ctx)
	if err != nil {
		return nil, err
	}

	overrides := make(map[int]int)
	if input != nil {
		for _, line := range input.Lines {
			if line.ReceivedQty < 0 {
				return nil, errors.New("received qty cannot be negative")
			}
			overrides[line.ProductId] = line.ReceivedQty
		}
	}

	tx := db.Begin()

	order, err := lockOrderForUpdate(tx, ctx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if order.Status == PurchaseOrderStatusReceived {
		tx.Rollback()
		return order, nil
	}
	if err := order.transitionTo(PurchaseOrderStatusReceived); err != nil {
		tx.Rollback()
		return nil, err
	}

	productIds := make([]int, 0, len(order.Details))
	for _, detail := range order.Details {
		productIds = append(productIds, detail.ProductId)
	}
	products, err := lockProductsForUpdate(tx, ctx, productIds)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, detail := range order.Details {
		qty := detail.Qty
		if override, ok := overrides[detail.ProductId]; ok {
			qty = override
		}
		if qty == 0 {
			continue
		}
		if _, err := recordMovement(tx, ctx, products[detail.ProductId], movementInput{
			Direction:       MovementDirectionIn,
			Reason:          MovementReasonPurchaseOrder,
			Qty:             qty,
			UnitPrice:       decimal.NullDecimal{Decimal: detail.UnitCost, Valid: true},
			PurchaseOrderId: &order.ID,
			ActorName:       actor,
		}); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now()
	order.ReceivedAt = &now
	if err := tx.WithContext(ctx).Model(order).
		Updates(map[string]interface{}{"status": order.Status, "received_at": now}).Error; err != nil {
		tx.Rollback()
		return nil, classifyTxError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyTxError(err)
	}
	return order, nil
}

// CancelOrder works from PENDING or ARRIVED. A received order cannot be
// canceled; use ReopenOrder followed by a cancel instead.
func CancelOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	if _, err := actorNameFromContext(ctx); err != nil {
		return nil, err
	}

	tx := db.Begin()

	order, err := lockOrderForUpdate(tx, ctx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := order.transitionTo(PurchaseOrderStatusCanceled); err != nil {
		tx.Rollback()
		return nil, err
	}
	now := time.Now()
	order.CanceledAt = &now
	if err := tx.WithContext(ctx).Model(order).
		Updates(map[string]interface{}{"status": order.Status, "canceled_at": now}).Error; err != nil {
		tx.Rollback()
		return nil, classifyTxError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyTxError(err)
	}
	return order, nil
}

// ReopenOrder walks a RECEIVED order back to ARRIVED, reversing the stock
// it booked with compensating OUT/CORRECTION movements. Fails with
// InsufficientStockError when the received stock has already been sold.
func ReopenOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	actor, err := actorNameFromContext(ctx)
	if err != nil {
		return nil, err
	}

	tx := db.Begin()

	order, err := lockOrderForUpdate(tx, ctx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := order.transitionTo(PurchaseOrderStatusArrived); err != nil {
		tx.Rollback()
		return nil, err
	}

	productIds := make([]int, 0, len(order.Details))
	for _, detail := range order.Details {
		productIds = append(productIds, detail.ProductId)
	}
	products, err := lockProductsForUpdate(tx, ctx, productIds)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// Reverse exactly what receiving booked, per the ledger, so partial
	// receives reopen correctly.
	for _, detail := range order.Details {
		var receivedQty *int
		if err := tx.WithContext(ctx).Model(&StockMovement{}).
			Select("COALESCE(SUM(CASE WHEN direction = 'IN' THEN qty ELSE -qty END), 0)").
			Where("purchase_order_id = ? AND product_id = ?", order.ID, detail.ProductId).
			Scan(&receivedQty).Error; err != nil {
			tx.Rollback()
			return nil, classifyTxError(err)
		}
		if receivedQty == nil || *receivedQty <= 0 {
			continue
		}
		if _, err := recordMovement(tx, ctx, products[detail.ProductId], movementInput{
			Direction:       MovementDirectionOut,
			Reason:          MovementReasonCorrection,
			Qty:             *receivedQty,
			UnitPrice:       decimal.NullDecimal{Decimal: detail.UnitCost, Valid: true},
			PurchaseOrderId: &order.ID,
			ActorName:       actor,
			Note:            "reopened " + order.OrderNumber,
		}); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.WithContext(ctx).Model(order).
		Updates(map[string]interface{}{"status": order.Status, "received_at": gorm.Expr("NULL")}).Error; err != nil {
		tx.Rollback()
		return nil, classifyTxError(err)
	}
	order.ReceivedAt = nil

	if err := tx.Commit().Error; err != nil {
		return nil, classifyTxError(err)
	}
	return order, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	var order PurchaseOrder
	if err := db.WithContext(ctx).
		Preload("Details").Preload("Supplier").
		Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "purchase order", Key: itoa(id)}
		}
		return nil, err
	}
	return &order, nil
}

type PurchaseOrderFilter struct {
	Status     *PurchaseOrderStatus
	SupplierId *int
	Limit      int
}

func GetPurchaseOrders(ctx context.Context, filter PurchaseOrderFilter) ([]*PurchaseOrder, error) {
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Model(&PurchaseOrder{})
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.SupplierId != nil {
		dbCtx = dbCtx.Where("supplier_id = ?", *filter.SupplierId)
	}

	limit := filter.Limit
	if limit <= 0 || limit > config.SearchLimit {
		limit = config.SearchLimit
	}

	var orders []*PurchaseOrder
	if err := dbCtx.Preload("Details").
		Order("created_at DESC, id DESC").Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
