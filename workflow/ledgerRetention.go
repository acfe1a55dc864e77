package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RollupLedgerBefore compacts movements older than the cutoff into a single
// baseline row per product. The baseline is an IN/INITIAL_STOCK movement
// carrying the net of everything purged, so the sum over the remaining
// ledger still equals the product quantity. Products whose purged prefix
// nets negative are skipped; compacting them would need an OUT baseline
// that a fresh ledger cannot start with.
func RollupLedgerBefore(ctx context.Context, cutoff time.Time, actorName string) error {
	db := config.GetDB()
	logger := config.GetLogger()

	var productIds []int
	if err := db.WithContext(ctx).Model(&models.StockMovement{}).
		Distinct("product_id").
		Where("created_at < ?", cutoff).
		Order("product_id").
		Pluck("product_id", &productIds).Error; err != nil {
		return err
	}

	compacted := 0
	for _, productId := range productIds {
		err := rollupProductLedger(ctx, db, productId, cutoff, actorName)
		if err == errNegativePrefix {
			logger.WithFields(logrus.Fields{"product_id": productId}).
				Warn("ledger prefix nets negative, skipping rollup")
			continue
		}
		if err != nil {
			return err
		}
		compacted++
	}

	logger.WithFields(logrus.Fields{
		"cutoff":    cutoff,
		"compacted": compacted,
	}).Info("ledger rollup complete")
	return nil
}

var errNegativePrefix = errNegativePrefixType{}

type errNegativePrefixType struct{}

func (errNegativePrefixType) Error() string { return "purged ledger prefix nets negative" }

func rollupProductLedger(ctx context.Context, db *gorm.DB, productId int, cutoff time.Time, actorName string) error {
	tx := db.Begin()

	var net *int
	if err := tx.WithContext(ctx).Model(&models.StockMovement{}).
		Select("COALESCE(SUM(CASE WHEN direction = 'IN' THEN qty ELSE -qty END), 0)").
		Where("product_id = ? AND created_at < ?", productId, cutoff).
		Scan(&net).Error; err != nil {
		tx.Rollback()
		return err
	}
	netQty := 0
	if net != nil {
		netQty = *net
	}
	if netQty < 0 {
		tx.Rollback()
		return errNegativePrefix
	}

	if err := tx.WithContext(ctx).
		Where("product_id = ? AND created_at < ?", productId, cutoff).
		Delete(&models.StockMovement{}).Error; err != nil {
		tx.Rollback()
		return err
	}

	if netQty > 0 {
		baseline := models.StockMovement{
			ProductId: productId,
			Direction: models.MovementDirectionIn,
			Reason:    models.MovementReasonInitialStock,
			Qty:       netQty,
			UnitPrice: decimal.NullDecimal{},
			ActorName: actorName,
			Note:      "retention rollup baseline",
			CreatedAt: cutoff.Add(-time.Second),
		}
		if err := tx.WithContext(ctx).Create(&baseline).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit().Error
}
