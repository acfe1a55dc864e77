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

type Product struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Sku              string          `gorm:"size:100;uniqueIndex;not null" json:"sku" binding:"required"`
	Name             string          `gorm:"size:200;not null" json:"name" binding:"required"`
	CategoryName     string          `gorm:"size:100;default:null" json:"category_name"`
	Price            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	Quantity         int             `gorm:"not null;default:0" json:"quantity"`
	ReorderThreshold int             `gorm:"not null;default:0" json:"reorder_threshold"`
	Status           ProductStatus   `gorm:"type:enum('ACTIVE','DEACTIVATED');not null;default:'ACTIVE'" json:"status"`
	LastRestockAt    *time.Time      `gorm:"default:null" json:"last_restock_at"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Sku              string          `json:"sku" binding:"required"`
	Name             string          `json:"name" binding:"required"`
	CategoryName     string          `json:"category_name"`
	Price            decimal.Decimal `json:"price"`
	InitialQuantity  int             `json:"initial_quantity"`
	ReorderThreshold int             `json:"reorder_threshold"`
}

// UpdateProductInput carries metadata only. Quantity is deliberately absent:
// it changes exclusively through stock movements.
type UpdateProductInput struct {
	Name             string          `json:"name" binding:"required"`
	CategoryName     string          `json:"category_name"`
	Price            decimal.Decimal `json:"price"`
	ReorderThreshold int             `json:"reorder_threshold"`
}

func (input *NewProduct) validate(ctx context.Context) error {
	if input.Price.IsNegative() {
		return errors.New("price cannot be negative")
	}
	if input.InitialQuantity < 0 {
		return errors.New("initial quantity cannot be negative")
	}
	if err := utils.ValidateUnique[Product](ctx, "sku", input.Sku, 0); err != nil {
		return err
	}
	return nil
}

// CreateProduct inserts the product at quantity zero and, when an initial
// quantity is given, books it as an IN/INITIAL_STOCK movement in the same
// transaction, so the ledger invariant holds from the very first row.
func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	db := config.GetDB()

	actor, err := actorNameFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	product := Product{
		Sku:              input.Sku,
		Name:             input.Name,
		CategoryName:     input.CategoryName,
		Price:            input.Price,
		Quantity:         0,
		ReorderThreshold: input.ReorderThreshold,
		Status:           ProductStatusActive,
	}

	tx := db.Begin()

	if err := tx.WithContext(ctx).Create(&product).Error; err != nil {
		tx.Rollback()
		return nil, classifyTxError(err)
	}

	if input.InitialQuantity > 0 {
		_, err := recordMovement(tx, ctx, &product, movementInput{
			Direction: MovementDirectionIn,
			Reason:    MovementReasonInitialStock,
			Qty:       input.InitialQuantity,
			ActorName: actor,
		})
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyTxError(err)
	}

	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *UpdateProductInput) (*Product, error) {
	db := config.GetDB()

	if _, err := actorNameFromContext(ctx); err != nil {
		return nil, err
	}
	if input.Price.IsNegative() {
		return nil, errors.New("price cannot be negative")
	}

	product, err := GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	product.Name = input.Name
	product.CategoryName = input.CategoryName
	product.Price = input.Price
	product.ReorderThreshold = input.ReorderThreshold

	if err := db.WithContext(ctx).Model(product).
		Select("Name", "CategoryName", "Price", "ReorderThreshold").
		Updates(product).Error; err != nil {
		return nil, classifyTxError(err)
	}

	return product, nil
}

// ToggleActiveProduct is the normal lifecycle path; products are never hard
// deleted by day-to-day flows.
func ToggleActiveProduct(ctx context.Context, id int, active bool) (*Product, error) {
	db := config.GetDB()

	product, err := GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	status := ProductStatusDeactivated
	if active {
		status = ProductStatusActive
	}
	if err := db.WithContext(ctx).Model(product).Update("Status", status).Error; err != nil {
		return nil, classifyTxError(err)
	}
	product.Status = status
	return product, nil
}

// DeleteProduct is the administrative escape hatch. It refuses when the
// product still has ledger rows; history is never dropped implicitly.
func DeleteProduct(ctx context.Context, id int) error {
	db := config.GetDB()

	product, err := GetProduct(ctx, id)
	if err != nil {
		return err
	}

	var movements int64
	if err := db.WithContext(ctx).Model(&StockMovement{}).
		Where("product_id = ?", id).Count(&movements).Error; err != nil {
		return classifyTxError(err)
	}
	if movements > 0 {
		return errors.New("product has stock movements; deactivate it instead")
	}

	return db.WithContext(ctx).Delete(product).Error
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	db := config.GetDB()

	var product Product
	if err := db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "product", Key: itoa(id)}
		}
		return nil, err
	}
	return &product, nil
}

func GetProductBySku(ctx context.Context, sku string) (*Product, error) {
	db := config.GetDB()

	var product Product
	if err := db.WithContext(ctx).First(&product, "sku = ?", sku).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "product", Key: sku}
		}
		return nil, err
	}
	return &product, nil
}

func GetProducts(ctx context.Context, status *ProductStatus, category *string) ([]*Product, error) {
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Model(&Product{})
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if category != nil && *category != "" {
		dbCtx = dbCtx.Where("category_name = ?", *category)
	}

	var products []*Product
	if err := dbCtx.Order("sku").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// LowStockProducts is the one canonical low-stock derivation; alerting and
// dashboards must call this rather than re-deriving the predicate.
func LowStockProducts(ctx context.Context) ([]*Product, error) {
	db := config.GetDB()

	var products []*Product
	if err := db.WithContext(ctx).
		Where("quantity <= reorder_threshold AND status = ?", ProductStatusActive).
		Order("sku").
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func GetProductCategories(ctx context.Context) ([]string, error) {
	db := config.GetDB()

	var categories []string
	if err := db.WithContext(ctx).Model(&Product{}).
		Distinct("category_name").
		Where("category_name IS NOT NULL AND category_name != ''").
		Order("category_name").
		Pluck("category_name", &categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}
