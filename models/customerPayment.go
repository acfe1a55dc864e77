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
)

// CustomerPayment settles credit. A payment may target one credit sale or
// pay down the account as a whole; either way it may never exceed what is
// outstanding at the moment it posts.
type CustomerPayment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	PaymentNumber string          `gorm:"type:varchar(20);uniqueIndex;not null" json:"payment_number"`
	SequenceNo    int             `gorm:"not null" json:"sequence_no"`
	CustomerId    int             `gorm:"index;not null" json:"customer_id"`
	Customer      *Customer       `json:"customer,omitempty"`
	PosSaleId     *int            `gorm:"index;default:null" json:"pos_sale_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Method        PaymentMode     `gorm:"type:enum('CASH','CARD','CREDIT');not null" json:"method"`
	Note          string          `gorm:"type:text;default:null" json:"note"`
	ReceivedBy    string          `gorm:"size:255;not null" json:"received_by"`
	PaidAt        time.Time       `gorm:"autoCreateTime" json:"paid_at"`
}

type NewCustomerPayment struct {
	CustomerId    int             `json:"customer_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Method        PaymentMode     `json:"method" binding:"required"`
	ReceiptNumber *string         `json:"receipt_number"`
	Note          string          `json:"note"`
}

func (input *NewCustomerPayment) validate() error {
	if !input.Amount.IsPositive() {
		return errors.New("payment amount must be positive")
	}
	if input.Method == PaymentModeCredit {
		return errors.New("a credit account cannot be settled on credit")
	}
	if input.Method != PaymentModeCash && input.Method != PaymentModeCard {
		return errors.New("invalid payment method")
	}
	return nil
}

// RecordPayment posts a payment against a customer's credit balance. The
// customer row lock serializes concurrent payments so two at once cannot
// jointly overpay.
func RecordPayment(ctx context.Context, input *NewCustomerPayment) (*CustomerPayment, error) {
	db := config.GetDB()

	actor, err := actorNameFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	tx := db.Begin()

	customer, err := lockCustomerForUpdate(tx, ctx, input.CustomerId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var posSaleId *int
	if input.ReceiptNumber != nil && *input.ReceiptNumber != "" {
		var sale PosSale
		if err := tx.WithContext(ctx).
			Where("receipt_number = ?", *input.ReceiptNumber).
			First(&sale).Error; err != nil {
			tx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &NotFoundError{Kind: "receipt", Key: *input.ReceiptNumber}
			}
			return nil, classifyTxError(err)
		}
		if sale.CustomerId == nil || *sale.CustomerId != customer.ID {
			tx.Rollback()
			return nil, errors.New("receipt does not belong to this customer")
		}
		if sale.PaymentMode != PaymentModeCredit {
			tx.Rollback()
			return nil, errors.New("receipt was not sold on credit")
		}

		// Targeted payments are bounded by what remains unpaid on that sale.
		var paidOnSale decimal.NullDecimal
		if err := tx.WithContext(ctx).Model(&CustomerPayment{}).
			Select("COALESCE(SUM(amount), 0)").
			Where("pos_sale_id = ?", sale.ID).
			Scan(&paidOnSale).Error; err != nil {
			tx.Rollback()
			return nil, classifyTxError(err)
		}
		remaining := sale.Total.Sub(paidOnSale.Decimal)
		if input.Amount.GreaterThan(remaining) {
			tx.Rollback()
			return nil, &OverPaymentError{
				CustomerId:  customer.ID,
				Amount:      input.Amount,
				Outstanding: remaining,
			}
		}
		posSaleId = &sale.ID
	}

	outstanding, err := customerOutstandingBalance(tx, ctx, customer.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if input.Amount.GreaterThan(outstanding) {
		tx.Rollback()
		return nil, &OverPaymentError{
			CustomerId:  customer.ID,
			Amount:      input.Amount,
			Outstanding: outstanding,
		}
	}

	sequenceNo, err := utils.GetSequence[CustomerPayment](ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	payment := CustomerPayment{
		PaymentNumber: fmt.Sprintf("CP-%06d", sequenceNo),
		SequenceNo:    int(sequenceNo),
		CustomerId:    customer.ID,
		PosSaleId:     posSaleId,
		Amount:        input.Amount,
		Method:        input.Method,
		Note:          input.Note,
		ReceivedBy:    actor,
	}
	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, classifyTxError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyTxError(err)
	}
	return &payment, nil
}

func GetCustomerPayments(ctx context.Context, customerId int) ([]*CustomerPayment, error) {
	db := config.GetDB()

	if err := utils.ValidateResourceId[Customer](ctx, customerId); err != nil {
		return nil, &NotFoundError{Kind: "customer", Key: itoa(customerId)}
	}

	var payments []*CustomerPayment
	if err := db.WithContext(ctx).
		Where("customer_id = ?", customerId).
		Order("paid_at DESC, id DESC").Limit(config.SearchLimit).
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
