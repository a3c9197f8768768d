// Package storage provides the time-series store boundary for ticks and
// candles: bucketed, retention-governed partitions with idempotent writes
// keyed by (symbol, timeframe, timestamp).
package storage

import (
	"context"
	"time"

	"github.com/agentictrader/marketdata/internal/models"
)

// Store is the system of record for finalized market data.
// Implementations must be safe for concurrent use, and writes must be
// idempotent at the (symbol, timeframe, timestamp) granularity so retried
// or replayed writes overwrite rather than duplicate.
type Store interface {
	// WriteTicks inserts a batch of raw ticks into the given bucket.
	WriteTicks(ctx context.Context, bucket string, ticks []models.Tick) error

	// WriteCandles inserts a batch of OHLCV bars into the given bucket.
	WriteCandles(ctx context.Context, bucket string, candles []models.Candle) error

	// QueryCandles returns the symbol's bars in [start, stop), oldest first.
	QueryCandles(ctx context.Context, bucket, symbol string, start, stop time.Time) ([]models.Candle, error)

	// LastCandle returns the symbol's most recent bar in the bucket, or
	// nil if the bucket holds no data for the symbol.
	LastCandle(ctx context.Context, bucket, symbol string) (*models.Candle, error)

	// DeleteRange removes points in [start, stop) from the bucket,
	// optionally restricted to one measurement.
	DeleteRange(ctx context.Context, bucket string, start, stop time.Time, measurement string) error

	// BucketExists reports whether the named bucket exists.
	BucketExists(ctx context.Context, name string) (bool, error)

	// CreateBucket creates a bucket with the given retention duration
	// string (e.g. "7d"). Creating an existing bucket is a no-op.
	CreateBucket(ctx context.Context, name, retention string) error

	// BucketRetention returns the bucket's retention duration string, or
	// "infinite" when no expiry rule is set.
	BucketRetention(ctx context.Context, name string) (string, error)

	// SetBucketRetention replaces the bucket's retention with the given
	// duration string.
	SetBucketRetention(ctx context.Context, name, retention string) error

	// Close releases the underlying client resources.
	Close()
}
