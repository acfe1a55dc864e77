package models

import (
	"github.com/mmdatafocus/retail_backend/config"
)

// MigrateTable keeps the schema in sync on boot. Order matters for the
// foreign-key bearing tables.
func MigrateTable() error {
	db := config.GetDB()

	return db.AutoMigrate(
		&User{},
		&Supplier{},
		&Customer{},
		&Product{},
		&PurchaseOrder{},
		&PurchaseOrderDetail{},
		&PosSale{},
		&PosSaleDetail{},
		&StockMovement{},
		&Refund{},
		&RefundDetail{},
		&CustomerPayment{},
	)
}
