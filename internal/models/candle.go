package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents a single OHLCV bar for a symbol and timeframe.
// Timestamp is the bar open time, truncated to the timeframe boundary.
// Volume counts the ticks that contributed to the bar.
type Candle struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

// NewCandle seeds a bar from the first tick of a period:
// open, high, low and close all equal the tick's price, volume is 1.
func NewCandle(symbol, timeframe string, period time.Time, price decimal.Decimal) *Candle {
	return &Candle{
		Symbol:    symbol,
		Timeframe: timeframe,
		Timestamp: period,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    1,
	}
}

// SeedFromClose seeds the next bar from the closing price of a just-flushed
// bar. The new bar opens at the previous close with volume zero, keeping
// price continuity across the period boundary.
func SeedFromClose(prev *Candle, period time.Time) *Candle {
	return &Candle{
		Symbol:    prev.Symbol,
		Timeframe: prev.Timeframe,
		Timestamp: period,
		Open:      prev.Close,
		High:      prev.Close,
		Low:       prev.Close,
		Close:     prev.Close,
		Volume:    0,
	}
}

// ApplyTick folds one tick into the bar: high and low widen as needed,
// close tracks the latest price and volume counts the tick.
func (c *Candle) ApplyTick(price decimal.Decimal) {
	if price.GreaterThan(c.High) {
		c.High = price
	}
	if price.LessThan(c.Low) {
		c.Low = price
	}
	c.Close = price
	c.Volume++
}

// Validate checks the OHLCV invariants.
func (c Candle) Validate() error {
	if c.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if c.Timeframe == "" {
		return &ValidationError{Field: "timeframe", Reason: "must not be empty"}
	}
	if c.Volume < 0 {
		return &ValidationError{Field: "volume", Reason: "must be non-negative"}
	}
	if c.High.LessThan(c.Low) {
		return &ValidationError{Field: "high", Reason: "must be >= low"}
	}
	if c.Open.LessThan(c.Low) || c.Open.GreaterThan(c.High) {
		return &ValidationError{Field: "open", Reason: "must be within the high-low range"}
	}
	if c.Close.LessThan(c.Low) || c.Close.GreaterThan(c.High) {
		return &ValidationError{Field: "close", Reason: "must be within the high-low range"}
	}
	return nil
}

// Row returns the candle as a conversion row for the timeframe converter.
func (c Candle) Row() Row {
	return Row{
		Timestamp: c.Timestamp,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}
}

// Row is a single [timestamp, open, high, low, close, volume] entry as
// consumed and produced by the timeframe converter. It carries no symbol
// or timeframe; those belong to the surrounding context.
type Row struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// Candle attaches a symbol and timeframe to the row.
func (r Row) Candle(symbol, timeframe string) Candle {
	return Candle{
		Symbol:    symbol,
		Timeframe: timeframe,
		Timestamp: r.Timestamp,
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
}
