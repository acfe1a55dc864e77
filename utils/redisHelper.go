package utils

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/mmdatafocus/retail_backend/config"
)

var mutex sync.Mutex

/* generic functions */

func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

// GetSequence returns the next document sequence number for model T.
// Redis INCR is the fast path; on a fresh counter the max(sequence_no)
// already in the DB seeds it. The uniqueness re-check keeps concurrent
// instances from handing out the same number after a redis flush.
func GetSequence[T any](ctx context.Context) (int64, error) {
	var model T
	mutex.Lock()
	defer mutex.Unlock()
	cacheKey := strings.ToLower(GetTypeName[T]()) + "_seq"
	var seqNo int64
	var err error
	db := config.GetDB()

	for {
		seqNo, err = config.GetRedisCounter(ctx, cacheKey)
		if err != nil {
			return 0, err
		}
		// A fresh counter INCRs to 1; a missing redis client reads 0. Both
		// reseed from the DB max so the loop below can always terminate.
		if seqNo <= 1 {
			var dbSeq *int64
			if err := db.WithContext(ctx).Model(&model).Select("max(sequence_no)").
				Scan(&dbSeq).Error; err != nil {
				return 0, err
			}
			// in case db has no records yet
			if dbSeq == nil {
				seqNo = 0
			} else {
				seqNo = *dbSeq
			}
			seqNo++
			if err := config.SetRedisValue(cacheKey, fmt.Sprint(seqNo), 0); err != nil {
				return 0, err
			}
		}
		// check if sequence number exists in db
		err = ValidateUnique[T](ctx, "sequence_no", seqNo, 0)
		if err == nil {
			break
		}
	}
	return seqNo, nil
}
