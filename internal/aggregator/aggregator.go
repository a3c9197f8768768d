// Package aggregator rolls irregular price ticks into one-minute OHLCV
// candles, one in-progress candle per symbol.
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentictrader/marketdata/internal/models"
	"github.com/agentictrader/marketdata/internal/timeframe"
)

// EmitFunc receives each finalized candle. The aggregator makes exactly
// one emit attempt per finalized bar; persistence and fan-out are the
// callback's concern.
type EmitFunc func(ctx context.Context, candle models.Candle) error

// Aggregator maintains the single open candle per symbol and finalizes it
// when a tick's minute boundary advances past the open bar's period.
//
// Each symbol carries its own lock, held across the emit callback, so one
// symbol's bars finalize in order while other symbols keep rolling
// concurrently. The aggregator-wide mutex only guards the symbol map.
type Aggregator struct {
	mu      sync.Mutex
	symbols map[string]*symbolState
	emit    EmitFunc
	logger  *logrus.Logger
}

type symbolState struct {
	mu      sync.Mutex
	current *models.Candle
}

// New creates an aggregator that hands finalized candles to emit.
func New(emit EmitFunc, logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		symbols: make(map[string]*symbolState),
		emit:    emit,
		logger:  logger,
	}
}

func (a *Aggregator) state(symbol string) *symbolState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.symbols[symbol]
	if !ok {
		st = &symbolState{}
		a.symbols[symbol] = st
	}
	return st
}

// Update folds one tick into the symbol's open candle.
//
// The first tick of a symbol seeds a fresh bar from its own price. A tick
// within the open bar's period mutates the bar in place. A tick in a later
// period finalizes the open bar, seeds the next bar from the flushed bar's
// closing price (volume zero), and then applies the tick on top of that
// seed, so prices stay continuous across the boundary.
//
// Late ticks for an already-closed period never rewrite finalized bars:
// they are logged as stale and dropped. Out-of-order tolerance is bounded
// to "still within the currently open bar".
func (a *Aggregator) Update(ctx context.Context, tick models.Tick) error {
	period := tick.Timestamp.Truncate(time.Minute)

	st := a.state(tick.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	current := st.current
	if current == nil {
		st.current = models.NewCandle(tick.Symbol, string(timeframe.M1), period, tick.Price)
		return nil
	}

	switch {
	case period.Equal(current.Timestamp):
		current.ApplyTick(tick.Price)
		return nil

	case period.Before(current.Timestamp):
		a.logger.WithFields(logrus.Fields{
			"symbol":      tick.Symbol,
			"tick_period": period,
			"open_period": current.Timestamp,
		}).Warn("Stale tick for closed bar period, dropping")
		return nil

	default:
		finalized := *current
		next := models.SeedFromClose(current, period)
		next.ApplyTick(tick.Price)
		st.current = next
		return a.emit(ctx, finalized)
	}
}

// ForceFlush emits the symbol's open candle regardless of whether its
// period has elapsed and clears it. Used at shutdown and at the end of
// historical backfills, where no later tick will ever trigger a rollover.
// Flushing a symbol with no open candle is a no-op.
func (a *Aggregator) ForceFlush(ctx context.Context, symbol string) error {
	a.mu.Lock()
	st, ok := a.symbols[symbol]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return st.flush(ctx, a.emit)
}

// ForceFlushAll force-flushes every symbol with an open candle. It keeps
// going after an emit failure and returns the first error encountered.
func (a *Aggregator) ForceFlushAll(ctx context.Context) error {
	a.mu.Lock()
	states := make([]*symbolState, 0, len(a.symbols))
	for _, st := range a.symbols {
		states = append(states, st)
	}
	a.mu.Unlock()

	var firstErr error
	for _, st := range states {
		if err := st.flush(ctx, a.emit); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (st *symbolState) flush(ctx context.Context, emit EmitFunc) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.current == nil {
		return nil
	}
	finalized := *st.current
	st.current = nil
	return emit(ctx, finalized)
}

// Current returns a copy of the symbol's open candle, if any.
func (a *Aggregator) Current(symbol string) (models.Candle, bool) {
	a.mu.Lock()
	st, ok := a.symbols[symbol]
	a.mu.Unlock()
	if !ok {
		return models.Candle{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.current == nil {
		return models.Candle{}, false
	}
	return *st.current, true
}
