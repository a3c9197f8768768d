// Package buffer accumulates validated ticks per symbol and flushes them
// to the time-series store in bounded, deduplicated batches.
package buffer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/agentictrader/marketdata/internal/models"
)

const (
	// maxWriteChunk caps a single store write to respect backend batch
	// limits, regardless of the configured flush batch size.
	maxWriteChunk = 100

	// writeAttempts is the total number of tries per chunk: one initial
	// write plus retries with exponential backoff.
	writeAttempts = 3

	// baseBackoff is the first retry delay; subsequent delays double.
	baseBackoff = time.Second
)

// TickWriter is the store-side sink for raw tick batches.
type TickWriter interface {
	WriteTicks(ctx context.Context, bucket string, ticks []models.Tick) error
}

// TickBuffer owns per-symbol pending tick lists until flush. Adding a tick
// past the batch size triggers an automatic flush of exactly one batch,
// oldest first, leaving any excess buffered. Forced flushes drain
// everything, irrespective of batch size.
//
// Delivery is at most once per flush attempt: entries taken out of the
// buffer for a failed write are not re-queued.
type TickBuffer struct {
	store     TickWriter
	bucket    string
	batchSize int
	logger    *logrus.Logger

	// mu serializes buffer mutation so a forced flush and a size-triggered
	// flush cannot race and double-send or drop ticks. Suspension happens
	// only in the store write, outside the lock.
	mu      sync.Mutex
	pending map[string][]models.Tick
}

// New creates a tick buffer writing to the given bucket.
func New(store TickWriter, bucket string, batchSize int, logger *logrus.Logger) *TickBuffer {
	return &TickBuffer{
		store:     store,
		bucket:    bucket,
		batchSize: batchSize,
		logger:    logger,
		pending:   make(map[string][]models.Tick),
	}
}

// Add appends a tick to its symbol's pending list and, once the list
// reaches the batch size, flushes exactly one batch.
func (b *TickBuffer) Add(ctx context.Context, tick models.Tick) error {
	b.mu.Lock()
	b.pending[tick.Symbol] = append(b.pending[tick.Symbol], tick)
	full := len(b.pending[tick.Symbol]) >= b.batchSize
	b.mu.Unlock()

	if !full {
		return nil
	}
	return b.Flush(ctx, tick.Symbol, false)
}

// Flush writes pending ticks for the symbol. When force is false, it only
// writes if a full batch is pending, and takes exactly batchSize ticks,
// oldest first. When force is true, it drains the whole list.
func (b *TickBuffer) Flush(ctx context.Context, symbol string, force bool) error {
	b.mu.Lock()
	pending := b.pending[symbol]
	if len(pending) == 0 || (!force && len(pending) < b.batchSize) {
		b.mu.Unlock()
		return nil
	}
	var batch []models.Tick
	if !force && len(pending) > b.batchSize {
		batch = pending[:b.batchSize]
		b.pending[symbol] = pending[b.batchSize:]
	} else {
		batch = pending
		b.pending[symbol] = nil
	}
	b.mu.Unlock()

	return b.write(ctx, dedupe(batch))
}

// FlushAll force-drains every symbol. It keeps going after a write failure
// and returns the first error encountered.
func (b *TickBuffer) FlushAll(ctx context.Context) error {
	b.mu.Lock()
	symbols := make([]string, 0, len(b.pending))
	for symbol := range b.pending {
		symbols = append(symbols, symbol)
	}
	b.mu.Unlock()

	var firstErr error
	for _, symbol := range symbols {
		if err := b.Flush(ctx, symbol, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len reports the number of pending ticks for a symbol.
func (b *TickBuffer) Len(symbol string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[symbol])
}

// write submits the batch in chunks no larger than maxWriteChunk, retrying
// each chunk on transient failure. After the attempts are exhausted the
// error propagates and the batch is not re-queued.
func (b *TickBuffer) write(ctx context.Context, batch []models.Tick) error {
	for start := 0; start < len(batch); start += maxWriteChunk {
		end := start + maxWriteChunk
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]

		backoff := retry.WithMaxRetries(writeAttempts-1, retry.NewExponential(baseBackoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			writeErr := b.store.WriteTicks(ctx, b.bucket, chunk)
			if writeErr == nil {
				return nil
			}
			var transient *models.TransientWriteError
			if errors.As(writeErr, &transient) {
				b.logger.WithFields(logrus.Fields{
					"bucket": b.bucket,
					"count":  len(chunk),
					"error":  writeErr,
				}).Warn("Tick chunk write failed, retrying")
				return retry.RetryableError(writeErr)
			}
			return writeErr
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// dedupe collapses ticks sharing a (symbol, second) identity to the first
// occurrence in buffer order.
func dedupe(batch []models.Tick) []models.Tick {
	seen := make(map[string]struct{}, len(batch))
	unique := batch[:0:0]
	for _, tick := range batch {
		key := tick.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, tick)
	}
	return unique
}
