// Package pipeline orchestrates the tick-to-candle ingestion: raw ticks
// are buffered and batch-written, rolled into one-minute bars, and fanned
// out across the coarser timeframes into their store buckets.
package pipeline

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/agentictrader/marketdata/internal/aggregator"
	"github.com/agentictrader/marketdata/internal/buffer"
	"github.com/agentictrader/marketdata/internal/models"
	"github.com/agentictrader/marketdata/internal/storage"
	"github.com/agentictrader/marketdata/internal/timeframe"
)

// historyCap bounds the rolling one-minute history kept per symbol for
// timeframe fan-out: one full D1 ratio of M1 bars.
var historyCap = timeframe.D1.Minutes()

// defaultBatchSize is the tick buffer flush threshold when the config
// leaves it unset.
const defaultBatchSize = 1000

// Publisher hands finalized one-minute candles to downstream consumers
// (the pattern detectors live behind this boundary). Publish failures are
// logged, never fatal to ingestion.
type Publisher interface {
	PublishCandle(candle models.Candle) error
}

// Config holds pipeline settings.
type Config struct {
	// BucketPrefix prefixes every store bucket name ("market_data" gives
	// "market_data_m1" ... "market_data_d1" and "market_data_ticks").
	BucketPrefix string

	// BatchSize is the tick buffer flush threshold. Zero or negative
	// falls back to defaultBatchSize.
	BatchSize int
}

// Pipeline wires the tick buffer, the candle aggregator and the timeframe
// converter to the time-series store. The store client is injected; its
// lifecycle belongs to the caller.
type Pipeline struct {
	store     storage.Store
	buffer    *buffer.TickBuffer
	agg       *aggregator.Aggregator
	publisher Publisher
	logger    *logrus.Logger
	cfg       Config

	mu      sync.Mutex
	history map[string][]models.Row
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPublisher attaches a downstream candle publisher.
func WithPublisher(p Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// New creates a pipeline writing through the given store.
func New(store storage.Store, cfg Config, logger *logrus.Logger, opts ...Option) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	p := &Pipeline{
		store:   store,
		logger:  logger,
		cfg:     cfg,
		history: make(map[string][]models.Row),
	}
	for _, opt := range opts {
		opt(p)
	}

	tickBucket := timeframe.TickBucketName(cfg.BucketPrefix)
	p.buffer = buffer.New(store, tickBucket, cfg.BatchSize, logger)
	p.agg = aggregator.New(p.onFinalize, logger)
	return p
}

// ProcessTick routes one validated tick into the buffer and the
// aggregator. Validation failures abort before any buffering. The two
// downstream paths are independent: a candle write failure does not undo
// the tick batch that may already have been flushed for this tick.
func (p *Pipeline) ProcessTick(ctx context.Context, tick models.Tick) error {
	if err := tick.Validate(); err != nil {
		return err
	}

	if err := p.buffer.Add(ctx, tick); err != nil {
		return err
	}
	return p.agg.Update(ctx, tick)
}

// IngestHistory replays a bulk historical response through the normal
// per-tick path in buffer-sized chunks, so backfills share the exact
// validation, aggregation and write semantics of live ingestion. The
// trailing open candle and any remaining buffered ticks are force-flushed,
// since no later tick will arrive to trigger a rollover.
func (p *Pipeline) IngestHistory(ctx context.Context, resp models.TickHistoryResponse) error {
	chunkSize := p.cfg.BatchSize
	for start := 0; start < len(resp.Ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(resp.Ticks) {
			end = len(resp.Ticks)
		}
		for _, tick := range resp.Ticks[start:end] {
			if err := p.ProcessTick(ctx, tick); err != nil {
				return err
			}
		}
	}

	if err := p.agg.ForceFlush(ctx, resp.Symbol); err != nil {
		return err
	}
	return p.buffer.Flush(ctx, resp.Symbol, true)
}

// Close drains the pipeline: open candles are force-flushed and the tick
// buffer is fully written out. Best effort; the first error is returned
// after both drains have been attempted.
func (p *Pipeline) Close(ctx context.Context) error {
	flushErr := p.agg.ForceFlushAll(ctx)
	bufferErr := p.buffer.FlushAll(ctx)
	if flushErr != nil {
		return flushErr
	}
	return bufferErr
}

// onFinalize handles every finalized one-minute candle: persist it to the
// M1 bucket, publish it downstream, and re-derive the coarser timeframes
// from the rolling M1 history.
func (p *Pipeline) onFinalize(ctx context.Context, candle models.Candle) error {
	m1Bucket := timeframe.BucketName(p.cfg.BucketPrefix, timeframe.M1)
	if err := p.store.WriteCandles(ctx, m1Bucket, []models.Candle{candle}); err != nil {
		return err
	}

	if p.publisher != nil {
		if err := p.publisher.PublishCandle(candle); err != nil {
			p.logger.WithFields(logrus.Fields{
				"symbol": candle.Symbol,
				"error":  err,
			}).Warn("Candle publish failed")
		}
	}

	return p.fanOut(ctx, candle)
}

// fanOut appends the bar to the symbol's M1 history and rewrites every
// coarser timeframe that has at least one full conversion ratio of
// history. Rewrites land on the same (symbol, timeframe, timestamp)
// series, so repeating them as the window fills is idempotent. The
// history is trimmed in whole historyCap steps, a multiple of every
// conversion ratio, so conversion chunk boundaries keep the same phase
// and rewrites stay on stable timestamps after a trim.
func (p *Pipeline) fanOut(ctx context.Context, candle models.Candle) error {
	p.mu.Lock()
	rows := append(p.history[candle.Symbol], candle.Row())
	if len(rows) >= 2*historyCap {
		rows = append([]models.Row(nil), rows[historyCap:]...)
	}
	p.history[candle.Symbol] = rows
	snapshot := make([]models.Row, len(rows))
	copy(snapshot, rows)
	p.mu.Unlock()

	aligned, err := timeframe.Align(snapshot, timeframe.All[1:])
	if err != nil {
		return err
	}

	for _, tf := range timeframe.All[1:] {
		converted, ok := aligned[tf]
		if !ok {
			continue
		}
		candles := make([]models.Candle, len(converted))
		for i, row := range converted {
			candles[i] = row.Candle(candle.Symbol, string(tf))
		}
		bucket := timeframe.BucketName(p.cfg.BucketPrefix, tf)
		if err := p.store.WriteCandles(ctx, bucket, candles); err != nil {
			return err
		}
	}
	return nil
}

// PendingTicks reports how many ticks are buffered for a symbol.
func (p *Pipeline) PendingTicks(symbol string) int {
	return p.buffer.Len(symbol)
}

// OpenCandle returns a copy of the symbol's in-progress candle, if any.
func (p *Pipeline) OpenCandle(symbol string) (models.Candle, bool) {
	return p.agg.Current(symbol)
}
