package models

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestPurchaseOrderTransitionTable(t *testing.T) {
	cases := []struct {
		from PurchaseOrderStatus
		to   PurchaseOrderStatus
		ok   bool
	}{
		{PurchaseOrderStatusPending, PurchaseOrderStatusArrived, true},
		{PurchaseOrderStatusPending, PurchaseOrderStatusCanceled, true},
		{PurchaseOrderStatusPending, PurchaseOrderStatusReceived, false},
		{PurchaseOrderStatusArrived, PurchaseOrderStatusReceived, true},
		{PurchaseOrderStatusArrived, PurchaseOrderStatusCanceled, true},
		{PurchaseOrderStatusArrived, PurchaseOrderStatusPending, false},
		{PurchaseOrderStatusReceived, PurchaseOrderStatusArrived, true},
		{PurchaseOrderStatusReceived, PurchaseOrderStatusCanceled, false},
		{PurchaseOrderStatusCanceled, PurchaseOrderStatusPending, false},
		{PurchaseOrderStatusCanceled, PurchaseOrderStatusArrived, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestAdjustmentReasonsExcludeFlowOwnedKinds(t *testing.T) {
	for _, reserved := range []MovementReason{MovementReasonSale, MovementReasonPurchaseOrder, MovementReasonReturn} {
		if reserved.AdjustmentReason() {
			t.Errorf("%s must not be usable on a manual adjustment", reserved)
		}
	}
	for _, allowed := range []MovementReason{MovementReasonDamage, MovementReasonInternalUse, MovementReasonCorrection, MovementReasonInitialStock, MovementReasonOther} {
		if !allowed.AdjustmentReason() {
			t.Errorf("%s should be usable on a manual adjustment", allowed)
		}
	}
}

func TestClassifyTxErrorWrapsOnlyLockConflicts(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	lockWait := &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	dupKey := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}

	if !IsConcurrencyConflict(classifyTxError(deadlock)) {
		t.Errorf("deadlock should classify as concurrency conflict")
	}
	if !IsConcurrencyConflict(classifyTxError(lockWait)) {
		t.Errorf("lock wait timeout should classify as concurrency conflict")
	}
	if IsConcurrencyConflict(classifyTxError(dupKey)) {
		t.Errorf("duplicate key must not be retryable")
	}
	if IsConcurrencyConflict(errors.New("insufficient stock")) {
		t.Errorf("plain errors must not be retryable")
	}

	// Wrapping is idempotent; a pre-classified error passes through.
	once := classifyTxError(deadlock)
	twice := classifyTxError(once)
	if once != twice {
		t.Errorf("double classification re-wrapped the error")
	}

	var cc *ConcurrencyConflictError
	if !errors.As(once, &cc) || !errors.Is(once, deadlock) {
		t.Errorf("classified error should unwrap to the original")
	}
}
