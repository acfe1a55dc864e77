package models

type ProductStatus string

const (
	ProductStatusActive      ProductStatus = "ACTIVE"
	ProductStatusDeactivated ProductStatus = "DEACTIVATED"
)

func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusActive, ProductStatusDeactivated:
		return true
	}
	return false
}

type MovementDirection string

const (
	MovementDirectionIn  MovementDirection = "IN"
	MovementDirectionOut MovementDirection = "OUT"
)

func (d MovementDirection) Valid() bool {
	return d == MovementDirectionIn || d == MovementDirectionOut
}

type MovementReason string

const (
	MovementReasonSale          MovementReason = "SALE"
	MovementReasonPurchaseOrder MovementReason = "PURCHASE_ORDER"
	MovementReasonDamage        MovementReason = "DAMAGE"
	MovementReasonInternalUse   MovementReason = "INTERNAL_USE"
	MovementReasonCorrection    MovementReason = "CORRECTION"
	MovementReasonReturn        MovementReason = "RETURN"
	MovementReasonInitialStock  MovementReason = "INITIAL_STOCK"
	MovementReasonOther         MovementReason = "OTHER"
)

func (r MovementReason) Valid() bool {
	switch r {
	case MovementReasonSale, MovementReasonPurchaseOrder, MovementReasonDamage,
		MovementReasonInternalUse, MovementReasonCorrection, MovementReasonReturn,
		MovementReasonInitialStock, MovementReasonOther:
		return true
	}
	return false
}

// AdjustmentReason reports whether r may be used on a manual stock
// adjustment. SALE, PURCHASE_ORDER and RETURN rows are only ever written by
// their owning flows (checkout, PO receive, refund).
func (r MovementReason) AdjustmentReason() bool {
	switch r {
	case MovementReasonDamage, MovementReasonInternalUse, MovementReasonCorrection,
		MovementReasonInitialStock, MovementReasonOther:
		return true
	}
	return false
}

type PaymentMode string

const (
	PaymentModeCash   PaymentMode = "CASH"
	PaymentModeCard   PaymentMode = "CARD"
	PaymentModeCredit PaymentMode = "CREDIT"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentModeCash, PaymentModeCard, PaymentModeCredit:
		return true
	}
	return false
}

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusPending  PurchaseOrderStatus = "PENDING"
	PurchaseOrderStatusArrived  PurchaseOrderStatus = "ARRIVED"
	PurchaseOrderStatusReceived PurchaseOrderStatus = "RECEIVED"
	PurchaseOrderStatusCanceled PurchaseOrderStatus = "CANCELED"
)

// purchaseOrderTransitions is the full transition table. RECEIVED -> ARRIVED
// is the manual reversal path and must emit compensating movements (see
// ReopenOrder); RECEIVED and CANCELED are otherwise terminal.
var purchaseOrderTransitions = map[PurchaseOrderStatus][]PurchaseOrderStatus{
	PurchaseOrderStatusPending:  {PurchaseOrderStatusArrived, PurchaseOrderStatusCanceled},
	PurchaseOrderStatusArrived:  {PurchaseOrderStatusReceived, PurchaseOrderStatusCanceled},
	PurchaseOrderStatusReceived: {PurchaseOrderStatusArrived},
	PurchaseOrderStatusCanceled: {},
}

func (s PurchaseOrderStatus) CanTransitionTo(next PurchaseOrderStatus) bool {
	for _, allowed := range purchaseOrderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type UserRole string

const (
	UserRoleOwner UserRole = "Owner"
	UserRoleStaff UserRole = "Staff"
)
