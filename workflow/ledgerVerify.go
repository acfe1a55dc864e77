package workflow

import (
	"context"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/sirupsen/logrus"
)

type LedgerDrift struct {
	ProductId      int    `json:"product_id"`
	Sku            string `json:"sku"`
	StoredQuantity int    `json:"stored_quantity"`
	LedgerQuantity int    `json:"ledger_quantity"`
}

// VerifyLedger recomputes every product's quantity from its movements and
// reports products whose stored quantity disagrees. An empty slice means
// the books balance.
func VerifyLedger(ctx context.Context) ([]LedgerDrift, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	var products []models.Product
	if err := db.WithContext(ctx).
		Select("id", "sku", "quantity").
		Order("id").Find(&products).Error; err != nil {
		return nil, err
	}

	var drifts []LedgerDrift
	for _, product := range products {
		ledgerQty, err := models.LedgerQuantity(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		if ledgerQty != product.Quantity {
			drift := LedgerDrift{
				ProductId:      product.ID,
				Sku:            product.Sku,
				StoredQuantity: product.Quantity,
				LedgerQuantity: ledgerQty,
			}
			drifts = append(drifts, drift)
			logger.WithFields(logrus.Fields{
				"product_id": drift.ProductId,
				"sku":        drift.Sku,
				"stored":     drift.StoredQuantity,
				"ledger":     drift.LedgerQuantity,
			}).Error("ledger drift detected")
		}
	}

	logger.WithFields(logrus.Fields{
		"products_checked": len(products),
		"drifts":           len(drifts),
	}).Info("ledger verification complete")

	return drifts, nil
}
