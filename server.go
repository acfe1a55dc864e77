package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/middlewares"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/mmdatafocus/retail_backend/workflow"
)

func main() {
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	if err := models.MigrateTable(); err != nil {
		logger.Fatalf("migration failed: %v", err)
	}

	router := setupRouter()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("forced shutdown: %v", err)
	}
	logger.Info("server stopped")
}

func setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "X-Correlation-Id"},
		ExposeHeaders:   []string{"X-Correlation-Id"},
		MaxAge:          12 * time.Hour,
	}))
	router.Use(middlewares.CorrelationIdMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/signin", signinHandler)

	api := router.Group("/api", middlewares.AuthMiddleware())
	{
		api.GET("/products", listProductsHandler)
		api.GET("/products/low-stock", lowStockHandler)
		api.GET("/products/categories", productCategoriesHandler)
		api.GET("/products/:id", getProductHandler)
		api.POST("/products", createProductHandler)
		api.PUT("/products/:id", updateProductHandler)
		api.POST("/products/:id/toggle-active", toggleProductHandler)
		api.DELETE("/products/:id", middlewares.RequireRole("Owner"), deleteProductHandler)

		api.GET("/stock-movements", listMovementsHandler)
		api.POST("/stock-movements", createAdjustmentHandler)

		api.POST("/checkout", checkoutHandler)
		api.GET("/receipts/:number", getReceiptHandler)
		api.GET("/receipts/:number/refunds", listRefundsHandler)
		api.GET("/sales", listSalesHandler)
		api.POST("/refunds", refundHandler)

		api.GET("/purchase-orders", listOrdersHandler)
		api.GET("/purchase-orders/:id", getOrderHandler)
		api.POST("/purchase-orders", placeOrderHandler)
		api.POST("/purchase-orders/:id/arrive", markArrivedHandler)
		api.POST("/purchase-orders/:id/receive", receiveOrderHandler)
		api.POST("/purchase-orders/:id/cancel", cancelOrderHandler)
		api.POST("/purchase-orders/:id/reopen", middlewares.RequireRole("Owner"), reopenOrderHandler)

		api.GET("/customers", listCustomersHandler)
		api.GET("/customers/:id", getCustomerHandler)
		api.GET("/customers/:id/balance", customerBalanceHandler)
		api.GET("/customers/:id/payments", listPaymentsHandler)
		api.POST("/customers", createCustomerHandler)
		api.PUT("/customers/:id", updateCustomerHandler)
		api.POST("/payments", recordPaymentHandler)

		api.GET("/suppliers", listSuppliersHandler)
		api.POST("/suppliers", createSupplierHandler)
		api.PUT("/suppliers/:id", updateSupplierHandler)
		api.DELETE("/suppliers/:id", middlewares.RequireRole("Owner"), deleteSupplierHandler)

		api.GET("/users", middlewares.RequireRole("Owner"), listUsersHandler)
		api.POST("/users", middlewares.RequireRole("Owner"), createUserHandler)
		api.POST("/users/change-password", changePasswordHandler)

		api.GET("/ledger/verify", middlewares.RequireRole("Owner"), ledgerVerifyHandler)
	}

	return router
}

// respondError maps the models' error kinds to HTTP statuses. Conflicts
// surface as 409 so clients know the request is safe to retry.
func respondError(c *gin.Context, err error) {
	var status int
	switch {
	case isNotFound(err):
		status = http.StatusNotFound
	case isBusinessRejection(err):
		status = http.StatusUnprocessableEntity
	case models.IsConcurrencyConflict(err):
		status = http.StatusConflict
	default:
		status = http.StatusBadRequest
		config.LogError(config.GetLogger(), "api", "respondError", c.FullPath(), nil, err)
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// respondBindingError renders a field->tag map for validator failures and a
// plain message for malformed JSON.
func respondBindingError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"fields": utils.ProcessValidationErrors(err),
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func isNotFound(err error) bool {
	var notFound *models.NotFoundError
	return errors.As(err, &notFound)
}

func isBusinessRejection(err error) bool {
	var insufficientStock *models.InsufficientStockError
	var insufficientPayment *models.InsufficientPaymentError
	var creditLimit *models.CreditLimitExceededError
	var overPayment *models.OverPaymentError
	var overRefund *models.OverRefundError
	var invalidTransition *models.InvalidTransitionError
	return errors.As(err, &insufficientStock) ||
		errors.As(err, &insufficientPayment) ||
		errors.As(err, &creditLimit) ||
		errors.As(err, &overPayment) ||
		errors.As(err, &overRefund) ||
		errors.As(err, &invalidTransition)
}

func paramId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func signinHandler(c *gin.Context) {
	var input models.SigninInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	token, user, err := models.SigninUser(c.Request.Context(), &input)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func listProductsHandler(c *gin.Context) {
	var status *models.ProductStatus
	if s := c.Query("status"); s != "" {
		v := models.ProductStatus(s)
		status = &v
	}
	var category *string
	if s := c.Query("category"); s != "" {
		category = &s
	}
	products, err := models.GetProducts(c.Request.Context(), status, category)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func lowStockHandler(c *gin.Context) {
	products, err := models.LowStockProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func productCategoriesHandler(c *gin.Context) {
	categories, err := models.GetProductCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func getProductHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	product, err := models.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func createProductHandler(c *gin.Context) {
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	product, err := models.CreateProduct(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func updateProductHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.UpdateProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	product, err := models.UpdateProduct(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func toggleProductHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	product, err := models.ToggleActiveProduct(c.Request.Context(), id, *input.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func deleteProductHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	if err := models.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func listMovementsHandler(c *gin.Context) {
	filter := models.StockMovementFilter{}
	if s := c.Query("sku"); s != "" {
		filter.Sku = &s
	}
	if s := c.Query("reason"); s != "" {
		reason := models.MovementReason(s)
		filter.Reason = &reason
	}
	if s := c.Query("actor"); s != "" {
		filter.Actor = &s
	}
	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		filter.DateFrom = &t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}
		filter.DateTo = &t
	}
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Limit = n
		}
	}
	movements, err := models.GetStockMovements(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, movements)
}

func createAdjustmentHandler(c *gin.Context) {
	var input models.NewStockAdjustment
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	movement, err := models.CreateStockAdjustment(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func checkoutHandler(c *gin.Context) {
	var input models.NewCheckout
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	sale, err := workflow.RunWithConflictRetry(c.Request.Context(), "checkout",
		func(ctx context.Context) (*models.PosSale, error) {
			return models.Checkout(ctx, &input)
		})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func getReceiptHandler(c *gin.Context) {
	sale, err := models.GetReceipt(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func listSalesHandler(c *gin.Context) {
	filter := models.PosSaleFilter{}
	if s := c.Query("customer_id"); s != "" {
		if id, err := strconv.Atoi(s); err == nil {
			filter.CustomerId = &id
		}
	}
	if s := c.Query("cashier"); s != "" {
		filter.Cashier = &s
	}
	sales, err := models.GetPosSales(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func refundHandler(c *gin.Context) {
	var input models.NewRefund
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	refund, err := workflow.RunWithConflictRetry(c.Request.Context(), "refund",
		func(ctx context.Context) (*models.Refund, error) {
			return models.RefundSale(ctx, &input)
		})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, refund)
}

func listRefundsHandler(c *gin.Context) {
	refunds, err := models.GetRefundsForReceipt(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, refunds)
}

func listOrdersHandler(c *gin.Context) {
	filter := models.PurchaseOrderFilter{}
	if s := c.Query("status"); s != "" {
		status := models.PurchaseOrderStatus(s)
		filter.Status = &status
	}
	if s := c.Query("supplier_id"); s != "" {
		if id, err := strconv.Atoi(s); err == nil {
			filter.SupplierId = &id
		}
	}
	orders, err := models.GetPurchaseOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func getOrderHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	order, err := models.GetPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func placeOrderHandler(c *gin.Context) {
	var input models.NewPurchaseOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	order, err := models.PlaceOrder(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func markArrivedHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	order, err := models.MarkArrived(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func receiveOrderHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.ReceiveOrderInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindingError(c, err)
			return
		}
	}
	order, err := workflow.RunWithConflictRetry(c.Request.Context(), "receive_order",
		func(ctx context.Context) (*models.PurchaseOrder, error) {
			return models.ReceiveOrder(ctx, id, &input)
		})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func cancelOrderHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	order, err := models.CancelOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func reopenOrderHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	order, err := workflow.RunWithConflictRetry(c.Request.Context(), "reopen_order",
		func(ctx context.Context) (*models.PurchaseOrder, error) {
			return models.ReopenOrder(ctx, id)
		})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func listCustomersHandler(c *gin.Context) {
	customers, err := models.GetCustomers(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func getCustomerHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	customer, err := models.GetCustomer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func customerBalanceHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	balance, err := models.GetCustomerBalance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer_id": id, "balance": balance})
}

func listPaymentsHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	payments, err := models.GetCustomerPayments(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func createCustomerHandler(c *gin.Context) {
	var input models.NewCustomer
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	customer, err := models.CreateCustomer(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func updateCustomerHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.UpdateCustomerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	customer, err := models.UpdateCustomer(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func recordPaymentHandler(c *gin.Context) {
	var input models.NewCustomerPayment
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	payment, err := workflow.RunWithConflictRetry(c.Request.Context(), "record_payment",
		func(ctx context.Context) (*models.CustomerPayment, error) {
			return models.RecordPayment(ctx, &input)
		})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func listSuppliersHandler(c *gin.Context) {
	suppliers, err := models.GetSuppliers(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, suppliers)
}

func createSupplierHandler(c *gin.Context) {
	var input models.NewSupplier
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	supplier, err := models.CreateSupplier(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, supplier)
}

func updateSupplierHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.NewSupplier
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	supplier, err := models.UpdateSupplier(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, supplier)
}

func deleteSupplierHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	if err := models.DeleteSupplier(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func listUsersHandler(c *gin.Context) {
	users, err := models.GetUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func createUserHandler(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func changePasswordHandler(c *gin.Context) {
	var input models.ChangePasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	userId, ok := paramUserId(c)
	if !ok {
		return
	}
	if err := models.ChangePassword(c.Request.Context(), userId, &input); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": true})
}

func paramUserId(c *gin.Context) (int, bool) {
	userId, found := utils.GetUserIdFromContext(c.Request.Context())
	if !found {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return 0, false
	}
	return userId, true
}

func ledgerVerifyHandler(c *gin.Context) {
	drifts, err := workflow.VerifyLedger(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drifts": drifts, "clean": len(drifts) == 0})
}
