// Package models defines the domain models shared across the ingestion service.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tick represents a single timestamped price observation for a symbol,
// as delivered by the market data vendor. Ticks are immutable once
// constructed: they are consumed by the aggregator and the buffer and
// discarded after being written.
type Tick struct {
	// Symbol is the vendor symbol (e.g., "EURUSD", "R_100").
	Symbol string `json:"symbol"`

	// Timestamp is when the price was observed, sub-second precision.
	Timestamp time.Time `json:"timestamp"`

	// Price is the quoted price. Stored as a decimal to preserve the
	// vendor's exact quote; converted to float only at the store boundary.
	Price decimal.Decimal `json:"price"`

	// PipSize is the number of decimal places of the symbol's pip.
	PipSize int `json:"pip_size"`
}

// Validate checks the tick invariants before it enters the pipeline.
// A violation is a ValidationError; the tick must not be buffered.
func (t Tick) Validate() error {
	if t.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if t.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "must be set"}
	}
	if t.Price.Sign() <= 0 {
		return &ValidationError{Field: "price", Reason: fmt.Sprintf("must be positive, got %s", t.Price)}
	}
	return nil
}

// DedupKey identifies a tick at second resolution. The vendor occasionally
// redelivers identical ticks and the store cannot distinguish sub-second
// duplicates, so two ticks with the same key collapse to the first one seen.
func (t Tick) DedupKey() string {
	return fmt.Sprintf("%s_%d", t.Symbol, t.Timestamp.Unix())
}
