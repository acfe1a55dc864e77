package workflow

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/sirupsen/logrus"
)

const lowStockAlertLockKey = "low_stock_alerts_lock"

// SendLowStockAlerts scans for active products at or below their reorder
// threshold and logs one alert per product. A redis lock keeps multiple
// instances from alerting twice; a second runner simply does nothing.
func SendLowStockAlerts(ctx context.Context) error {
	logger := config.GetLogger()

	lock, err := config.GetRedisLock().Obtain(ctx, lowStockAlertLockKey, time.Minute, nil)
	if err == redislock.ErrNotObtained {
		logger.Info("low stock alert run already in progress, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	products, err := models.LowStockProducts(ctx)
	if err != nil {
		return err
	}

	for _, product := range products {
		logger.WithFields(logrus.Fields{
			"sku":               product.Sku,
			"name":              product.Name,
			"quantity":          product.Quantity,
			"reorder_threshold": product.ReorderThreshold,
		}).Warn("low stock alert")
	}

	logger.WithFields(logrus.Fields{"alerts": len(products)}).Info("low stock scan complete")
	return nil
}
