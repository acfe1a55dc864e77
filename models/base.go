package models

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mmdatafocus/retail_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func itoa(id int) string { return fmt.Sprint(id) }

// actorNameFromContext resolves the acting user's display name. Every
// mutating core operation requires it; there is no ambient fallback.
func actorNameFromContext(ctx context.Context) (string, error) {
	name, ok := utils.GetUserNameFromContext(ctx)
	if !ok || name == "" {
		return "", errors.New("actor is required in context")
	}
	return name, nil
}

// lockProductsForUpdate locks the given product rows with SELECT ... FOR
// UPDATE and returns them keyed by id. Ids are deduplicated and locked in
// ascending order so two multi-product operations can never deadlock on each
// other. Locks are held until the surrounding transaction commits or rolls
// back.
func lockProductsForUpdate(tx *gorm.DB, ctx context.Context, productIds []int) (map[int]*Product, error) {
	ids := utils.UniqueSlice(productIds)
	sort.Ints(ids)

	var products []*Product
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&products).Error; err != nil {
		return nil, classifyTxError(err)
	}

	byId := make(map[int]*Product, len(products))
	for _, p := range products {
		byId[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := byId[id]; !ok {
			return nil, &NotFoundError{Kind: "product", Key: fmt.Sprint(id)}
		}
	}
	return byId, nil
}

// lockProductForUpdate is the single-row convenience form.
func lockProductForUpdate(tx *gorm.DB, ctx context.Context, productId int) (*Product, error) {
	byId, err := lockProductsForUpdate(tx, ctx, []int{productId})
	if err != nil {
		return nil, err
	}
	return byId[productId], nil
}
