package util

import (
	"context"
	"fmt"

	"github.com/go-sif/geopart"
)

// SafeShardWork wraps a ShardWork such that panics are recovered and nice error messages are constructed
func SafeShardWork(work geopart.ShardWork) (safeWork geopart.ShardWork) {
	return func(ctx context.Context, shard geopart.ShardHandle) (err error) {
		defer func() {
			if r := recover(); r != nil {
				if anErr, ok := r.(error); ok {
					err = fmt.Errorf("Shard Panic: %w\nShard: %d\n%s", anErr, shard.Index(), GetTrace())
				} else {
					err = fmt.Errorf("Shard Panic: %v\nShard: %d\n%s", r, shard.Index(), GetTrace())
				}
			}
		}()
		err = work(ctx, shard)
		return
	}
}

// SafeNormalize wraps a normalisation function such that panics become errors carrying the offending payload
func SafeNormalize(normalize func(raw []byte) (geopart.Record, error)) func(raw []byte) (geopart.Record, error) {
	return func(raw []byte) (record geopart.Record, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("Normalize Panic: %v\nRecord: %q\n%s", r, truncate(raw, 256), GetTrace())
			}
		}()
		record, err = normalize(raw)
		return
	}
}

func truncate(raw []byte, max int) []byte {
	if len(raw) > max {
		return raw[:max]
	}
	return raw
}
