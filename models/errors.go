package models

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

// Every rejection the core can produce carries its kind plus the offending
// identifier, so the surrounding layer can render an actionable message.
// Callers match with errors.As.

type InsufficientStockError struct {
	Sku       string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Sku, e.Requested, e.Available)
}

type InsufficientPaymentError struct {
	Tendered decimal.Decimal
	Total    decimal.Decimal
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("amount tendered %s is less than sale total %s", e.Tendered, e.Total)
}

type CreditLimitExceededError struct {
	CustomerId  int
	Balance     decimal.Decimal
	CartTotal   decimal.Decimal
	CreditLimit decimal.Decimal
}

func (e *CreditLimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded for customer %d: balance %s + sale %s > limit %s",
		e.CustomerId, e.Balance, e.CartTotal, e.CreditLimit)
}

type OverPaymentError struct {
	CustomerId  int
	Amount      decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *OverPaymentError) Error() string {
	return fmt.Sprintf("payment %s exceeds outstanding balance %s for customer %d", e.Amount, e.Outstanding, e.CustomerId)
}

type OverRefundError struct {
	Sku             string
	ReceiptNumber   string
	Sold            int
	AlreadyReturned int
	Requested       int
}

func (e *OverRefundError) Error() string {
	return fmt.Sprintf("refund of %d unit(s) of %s on receipt %s exceeds sold quantity (sold %d, already returned %d)",
		e.Requested, e.Sku, e.ReceiptNumber, e.Sold, e.AlreadyReturned)
}

type InvalidTransitionError struct {
	OrderNumber string
	From        PurchaseOrderStatus
	To          PurchaseOrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("purchase order %s cannot move from %s to %s", e.OrderNumber, e.From, e.To)
}

type NotFoundError struct {
	Kind string // "product", "customer", "sale", "purchase order", ...
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// ConcurrencyConflictError wraps a lock wait timeout / deadlock reported by
// the store. It is the only error kind callers may retry automatically: the
// failed transaction never made partial state visible.
type ConcurrencyConflictError struct {
	Err error
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict: %v", e.Err)
}

func (e *ConcurrencyConflictError) Unwrap() error { return e.Err }

// MySQL error numbers for lock wait timeout and deadlock.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

func IsConcurrencyConflict(err error) bool {
	if err == nil {
		return false
	}
	var cc *ConcurrencyConflictError
	if errors.As(err, &cc) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrLockWaitTimeout || mysqlErr.Number == mysqlErrDeadlock
	}
	return false
}

// classifyTxError wraps store-level conflicts so callers can distinguish the
// retryable class from logical rejections, which pass through untouched.
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	var cc *ConcurrencyConflictError
	if errors.As(err, &cc) {
		return err
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) &&
		(mysqlErr.Number == mysqlErrLockWaitTimeout || mysqlErr.Number == mysqlErrDeadlock) {
		return &ConcurrencyConflictError{Err: err}
	}
	return err
}
