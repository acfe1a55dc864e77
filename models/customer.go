package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Customer carries a credit account. The balance is never stored; it is
// always derived as credit sales minus payments, so the two ledgers cannot
// drift from a cached figure.
type Customer struct {
	ID              int             `gorm:"primary_key" json:"id"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	Phone           string          `gorm:"size:50;default:null" json:"phone"`
	Email           string          `gorm:"size:255;default:null" json:"email"`
	CreditLimit     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"credit_limit"`
	UnlimitedCredit bool            `gorm:"not null;default:false" json:"unlimited_credit"`
	IsActive        bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type NewCustomer struct {
	Name            string          `json:"name" binding:"required"`
	Phone           string          `json:"phone"`
	Email           string          `json:"email"`
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	UnlimitedCredit bool            `json:"unlimited_credit"`
}

func (input *NewCustomer) validate() error {
	if input.CreditLimit.IsNegative() {
		return errors.New("credit limit cannot be negative")
	}
	return nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	db := config.GetDB()

	if err := input.validate(); err != nil {
		return nil, err
	}

	customer := Customer{
		Name:            input.Name,
		Phone:           input.Phone,
		Email:           input.Email,
		CreditLimit:     input.CreditLimit,
		UnlimitedCredit: input.UnlimitedCredit,
		IsActive:        true,
	}
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

type UpdateCustomerInput struct {
	Name            string          `json:"name" binding:"required"`
	Phone           string          `json:"phone"`
	Email           string          `json:"email"`
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	UnlimitedCredit bool            `json:"unlimited_credit"`
	IsActive        *bool           `json:"is_active"`
}

func UpdateCustomer(ctx context.Context, id int, input *UpdateCustomerInput) (*Customer, error) {
	db := config.GetDB()

	if input.CreditLimit.IsNegative() {
		return nil, errors.New("credit limit cannot be negative")
	}

	customer, err := GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	customer.Name = input.Name
	customer.Phone = input.Phone
	customer.Email = input.Email
	customer.CreditLimit = input.CreditLimit
	customer.UnlimitedCredit = input.UnlimitedCredit
	if input.IsActive != nil {
		customer.IsActive = *input.IsActive
	}

	if err := db.WithContext(ctx).Model(customer).
		Select("Name", "Phone", "Email", "CreditLimit", "UnlimitedCredit", "IsActive").
		Updates(customer).Error; err != nil {
		return nil, err
	}
	return customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	db := config.GetDB()

	var customer Customer
	if err := db.WithContext(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "customer", Key: itoa(id)}
		}
		return nil, err
	}
	return &customer, nil
}

func GetCustomers(ctx context.Context, keyword string) ([]*Customer, error) {
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Model(&Customer{})
	if keyword != "" {
		like := "%" + keyword + "%"
		dbCtx = dbCtx.Where("name LIKE ? OR phone LIKE ?", like, like)
	}

	var customers []*Customer
	if err := dbCtx.Order("name ASC").Limit(config.SearchLimit).Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func lockCustomerForUpdate(tx *gorm.DB, ctx context.Context, id int) (*Customer, error) {
	var customer Customer
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "customer", Key: itoa(id)}
		}
		return nil, classifyTxError(err)
	}
	return &customer, nil
}

// customerOutstandingBalance sums credit sales minus payments inside the
// caller's transaction. Callers that enforce limits must hold the customer
// row lock first. Both sums are locking reads: under REPEATABLE READ the
// transaction's read view may predate the row lock, and a plain SELECT
// would miss sales or payments a competitor committed while we waited.
func customerOutstandingBalance(tx *gorm.DB, ctx context.Context, customerId int) (decimal.Decimal, error) {
	var charged, paid decimal.NullDecimal

	if err := tx.WithContext(ctx).Model(&PosSale{}).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Select("COALESCE(SUM(total), 0)").
		Where("customer_id = ? AND payment_mode = ?", customerId, PaymentModeCredit).
		Scan(&charged).Error; err != nil {
		return decimal.Zero, classifyTxError(err)
	}
	if err := tx.WithContext(ctx).Model(&CustomerPayment{}).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Select("COALESCE(SUM(amount), 0)").
		Where("customer_id = ?", customerId).
		Scan(&paid).Error; err != nil {
		return decimal.Zero, classifyTxError(err)
	}
	return charged.Decimal.Sub(paid.Decimal), nil
}

// GetCustomerBalance derives the outstanding balance fresh from both
// ledgers outside any transaction. Read-only callers use this.
func GetCustomerBalance(ctx context.Context, id int) (decimal.Decimal, error) {
	db := config.GetDB()

	if err := utils.ValidateResourceId[Customer](ctx, id); err != nil {
		return decimal.Zero, &NotFoundError{Kind: "customer", Key: itoa(id)}
	}
	return customerOutstandingBalance(db, ctx, id)
}
