package storage

import (
	"context"

	"github.com/agentictrader/marketdata/internal/timeframe"
)

// EnsureBuckets lazily creates the bucket structure the pipeline writes
// into: one candle bucket per timeframe, each with that timeframe's
// retention policy, plus the flat raw-tick bucket. Existing buckets keep
// their data but have their retention reconciled to the configured value.
func EnsureBuckets(ctx context.Context, store Store, prefix string) error {
	for _, tf := range timeframe.All {
		name := timeframe.BucketName(prefix, tf)
		if err := ensureBucket(ctx, store, name, timeframe.Configs[tf].Retention); err != nil {
			return err
		}
	}

	// Raw ticks expire on the same schedule as the finest candles.
	tickRetention := timeframe.Configs[timeframe.M1].Retention
	return ensureBucket(ctx, store, timeframe.TickBucketName(prefix), tickRetention)
}

func ensureBucket(ctx context.Context, store Store, name, retention string) error {
	exists, err := store.BucketExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return store.CreateBucket(ctx, name, retention)
	}

	current, err := store.BucketRetention(ctx, name)
	if err != nil {
		return err
	}
	if current == retention {
		return nil
	}
	return store.SetBucketRetention(ctx, name, retention)
}
