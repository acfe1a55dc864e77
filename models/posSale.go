package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PosSale is one completed checkout. Its lines are mirrored by OUT/SALE
// movements in the ledger, one per line, linked through pos_sale_id.
type PosSale struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ReceiptNumber string          `gorm:"type:varchar(20);uniqueIndex;not null" json:"receipt_number"`
	SequenceNo    int             `gorm:"not null" json:"sequence_no"`
	CustomerId    *int            `gorm:"index;default:null" json:"customer_id"`
	Customer      *Customer       `json:"customer,omitempty"`
	PaymentMode   PaymentMode     `gorm:"type:enum('CASH','CARD','CREDIT');not null" json:"payment_mode"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total"`
	Tendered      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"tendered"`
	Change        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"change"`
	CashierName   string          `gorm:"size:255;not null" json:"cashier_name"`
	SoldAt        time.Time       `gorm:"autoCreateTime" json:"sold_at"`

	Details   []PosSaleDetail `json:"details"`
	Movements []StockMovement `gorm:"foreignKey:PosSaleId" json:"movements,omitempty"`
}

type PosSaleDetail struct {
	ID        int             `gorm:"primary_key" json:"id"`
	PosSaleId int             `gorm:"index;not null" json:"pos_sale_id"`
	ProductId int             `gorm:"not null" json:"product_id"`
	Sku       string          `gorm:"size:100;not null" json:"sku"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Qty       int             `gorm:"not null" json:"qty"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"line_total"`
}

type NewCartLine struct {
	Sku string `json:"sku" binding:"required"`
	Qty int    `json:"qty" binding:"required"`
}

type NewCheckout struct {
	Lines       []NewCartLine   `json:"lines" binding:"required,dive"`
	PaymentMode PaymentMode     `json:"payment_mode" binding:"required"`
	Tendered    decimal.Decimal `json:"tendered"`
	CustomerId  *int            `json:"customer_id"`
}

func (input *NewCheckout) validate() error {
	if len(input.Lines) == 0 {
		return errors.New("cart must contain at least one line")
	}
	seen := make(map[string]bool, len(input.Lines))
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return errors.New("line qty must be positive")
		}
		if seen[line.Sku] {
			return errors.New("duplicate sku in cart: " + line.Sku)
		}
		seen[line.Sku] = true
	}
	switch input.PaymentMode {
	case PaymentModeCash, PaymentModeCard:
	case PaymentModeCredit:
		if input.CustomerId == nil {
			return errors.New("credit checkout requires a customer")
		}
	default:
		return errors.New("invalid payment mode")
	}
	return nil
}

// Checkout sells a cart atomically. Products are row-locked in ascending id
// order, every line is priced at the product's current price, stock and
// payment are validated under the locks, then the sale, its details and one
// OUT/SALE movement per line commit together or not at all.
func Checkout(ctx context.Context, input *NewCheckout) (*PosSale, error) {
	db := config.GetDB()

	cashier, err := actorNameFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	tx := db.Begin()

	// Resolve skus outside the lock set first, then lock by id so two
	// concurrent carts over the same products always lock in the same order.
	productIds := make([]int, 0, len(input.Lines))
	idBySku := make(map[string]int, len(input.Lines))
	for _, line := range input.Lines {
		var product Product
		if err := tx.WithContext(ctx).Select("id").
			Where("sku = ?", line.Sku).First(&product).Error; err != nil {
			tx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &NotFoundError{Kind: "product", Key: line.Sku}
			}
			return nil, classifyTxError(err)
		}
		productIds = append(productIds, product.ID)
		idBySku[line.Sku] = product.ID
	}

	products, err := lockProductsForUpdate(tx, ctx, productIds)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	total := decimal.Zero
	details := make([]PosSaleDetail, 0, len(input.Lines))
	for _, line := range input.Lines {
		product := products[idBySku[line.Sku]]
		if product.Status != ProductStatusActive {
			tx.Rollback()
			return nil, errors.New("product is deactivated: " + product.Sku)
		}
		if line.Qty > product.Quantity {
			tx.Rollback()
			return nil, &InsufficientStockError{
				Sku:       product.Sku,
				Requested: line.Qty,
				Available: product.Quantity,
			}
		}
		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(line.Qty)))
		total = total.Add(lineTotal)
		details = append(details, PosSaleDetail{
			ProductId: product.ID,
			Sku:       product.Sku,
			Name:      product.Name,
			Qty:       line.Qty,
			UnitPrice: product.Price,
			LineTotal: lineTotal,
		})
	}

	tendered := input.Tendered
	change := decimal.Zero
	switch input.PaymentMode {
	case PaymentModeCash:
		if tendered.LessThan(total) {
			tx.Rollback()
			return nil, &InsufficientPaymentError{Tendered: tendered, Total: total}
		}
		change = tendered.Sub(total)
	case PaymentModeCard:
		// Card captures the exact amount.
		tendered = total
	case PaymentModeCredit:
		tendered = decimal.Zero
		customer, err := lockCustomerForUpdate(tx, ctx, *input.CustomerId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if !customer.IsActive {
			tx.Rollback()
			return nil, errors.New("customer account is inactive")
		}
		if !customer.UnlimitedCredit {
			balance, err := customerOutstandingBalance(tx, ctx, customer.ID)
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			if balance.Add(total).GreaterThan(customer.CreditLimit) {
				tx.Rollback()
				return nil, &CreditLimitExceededError{
					CustomerId:  customer.ID,
					Balance:     balance,
					CartTotal:   total,
					CreditLimit: customer.CreditLimit,
				}
			}
		}
	}

	sequenceNo, err := utils.GetSequence[PosSale](ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	receiptNumber, err := newReceiptNumber(tx, ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	sale := PosSale{
		ReceiptNumber: receiptNumber,
		SequenceNo:    int(sequenceNo),
		CustomerId:    input.CustomerId,
		PaymentMode:   input.PaymentMode,
		Total:         total,
		Tendered:      tendered,
		Change:        change,
		CashierName:   cashier,
		Details:       details,
	}
	if err := tx.WithContext(ctx).Create(&sale).Error; err != nil {
		tx.Rollback()
		return nil, classifyTxError(err)
	}

	for i := range sale.Details {
		detail := &sale.Details[i]
		product := products[detail.ProductId]
		if _, err := recordMovement(tx, ctx, product, movementInput{
			Direction: MovementDirectionOut,
			Reason:    MovementReasonSale,
			Qty:       detail.Qty,
			UnitPrice: decimal.NullDecimal{Decimal: detail.UnitPrice, Valid: true},
			PosSaleId: &sale.ID,
			ActorName: cashier,
		}); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyTxError(err)
	}
	return &sale, nil
}

// newReceiptNumber draws random tokens until one is free. Collisions on an
// 8-hex-digit token are rare enough that the loop almost never iterates.
func newReceiptNumber(tx *gorm.DB, ctx context.Context) (string, error) {
	for i := 0; i < 10; i++ {
		token := utils.NewReceiptToken()
		var count int64
		if err := tx.WithContext(ctx).Model(&PosSale{}).
			Where("receipt_number = ?", token).Count(&count).Error; err != nil {
			return "", classifyTxError(err)
		}
		if count == 0 {
			return token, nil
		}
	}
	return "", errors.New("could not allocate a unique receipt number")
}

func GetReceipt(ctx context.Context, receiptNumber string) (*PosSale, error) {
	db := config.GetDB()

	var sale PosSale
	if err := db.WithContext(ctx).
		Preload("Details").Preload("Customer").Preload("Movements").
		Where("receipt_number = ?", receiptNumber).
		First(&sale).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "receipt", Key: receiptNumber}
		}
		return nil, err
	}
	return &sale, nil
}

type PosSaleFilter struct {
	CustomerId *int
	Cashier    *string
	DateFrom   *time.Time
	DateTo     *time.Time
	Limit      int
}

func GetPosSales(ctx context.Context, filter PosSaleFilter) ([]*PosSale, error) {
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Model(&PosSale{})
	if filter.CustomerId != nil {
		dbCtx = dbCtx.Where("customer_id = ?", *filter.CustomerId)
	}
	if filter.Cashier != nil && *filter.Cashier != "" {
		dbCtx = dbCtx.Where("cashier_name = ?", *filter.Cashier)
	}
	if filter.DateFrom != nil {
		dbCtx = dbCtx.Where("sold_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		dbCtx = dbCtx.Where("sold_at < ?", *filter.DateTo)
	}

	limit := filter.Limit
	if limit <= 0 || limit > config.SearchLimit {
		limit = config.SearchLimit
	}

	var sales []*PosSale
	if err := dbCtx.Preload("Details").
		Order("sold_at DESC, id DESC").Limit(limit).
		Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}
