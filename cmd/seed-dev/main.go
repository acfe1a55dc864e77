package main

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/retail_backend/appctx"
	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/shopspring/decimal"
)

// Seeds a development database with an owner account, a few products,
// suppliers and a customer. Safe to re-run; existing rows are skipped.
func main() {
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	if err := models.MigrateTable(); err != nil {
		logger.Fatalf("migration failed: %v", err)
	}

	ctx := appctx.Set(context.Background(), appctx.ContextKeyUserName, "seed")

	if _, err := models.CreateUser(ctx, &models.NewUser{
		Username: "owner",
		Name:     "Shop Owner",
		Password: "changeme1",
		Role:     models.UserRoleOwner,
	}); err != nil {
		fmt.Println("owner:", err)
	}
	if _, err := models.CreateUser(ctx, &models.NewUser{
		Username: "staff",
		Name:     "Front Counter",
		Password: "changeme1",
		Role:     models.UserRoleStaff,
	}); err != nil {
		fmt.Println("staff:", err)
	}

	suppliers := []models.NewSupplier{
		{Name: "Golden Valley Trading", Phone: "09-111111"},
		{Name: "City Wholesale", Phone: "09-222222"},
	}
	for _, s := range suppliers {
		if _, err := models.CreateSupplier(ctx, &s); err != nil {
			fmt.Println("supplier", s.Name+":", err)
		}
	}

	products := []models.NewProduct{
		{Sku: "SKU-100", Name: "Instant Coffee 3in1", CategoryName: "Beverages", Price: decimal.NewFromInt(1200), InitialQuantity: 50, ReorderThreshold: 10},
		{Sku: "SKU-101", Name: "Drinking Water 1L", CategoryName: "Beverages", Price: decimal.NewFromInt(500), InitialQuantity: 120, ReorderThreshold: 24},
		{Sku: "SKU-200", Name: "Laundry Soap Bar", CategoryName: "Household", Price: decimal.NewFromInt(800), InitialQuantity: 60, ReorderThreshold: 12},
		{Sku: "SKU-300", Name: "Exercise Book A5", CategoryName: "Stationery", Price: decimal.NewFromInt(350), InitialQuantity: 200, ReorderThreshold: 40},
	}
	for _, p := range products {
		if _, err := models.CreateProduct(ctx, &p); err != nil {
			fmt.Println("product", p.Sku+":", err)
		}
	}

	if _, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:        "Daw Hla Hla",
		Phone:       "09-333333",
		CreditLimit: decimal.NewFromInt(100000),
	}); err != nil {
		fmt.Println("customer:", err)
	}

	fmt.Println("seed complete")
}
