package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTickValidate(t *testing.T) {
	valid := Tick{
		Symbol:    "EURUSD",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Price:     decimal.NewFromFloat(1.0842),
		PipSize:   4,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Valid tick rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Tick)
	}{
		{"Empty symbol", func(tk *Tick) { tk.Symbol = "" }},
		{"Zero timestamp", func(tk *Tick) { tk.Timestamp = time.Time{} }},
		{"Zero price", func(tk *Tick) { tk.Price = decimal.Zero }},
		{"Negative price", func(tk *Tick) { tk.Price = decimal.NewFromInt(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tick := valid
			tt.mutate(&tick)
			err := tick.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if _, ok := err.(*ValidationError); !ok {
				t.Errorf("Expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestTickDedupKey(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 30, 500000000, time.UTC)
	tick := Tick{Symbol: "EURUSD", Timestamp: at, Price: decimal.NewFromInt(1)}
	expected := fmt.Sprintf("EURUSD_%d", at.Unix())
	if tick.DedupKey() != expected {
		t.Errorf("DedupKey = %q, expected %q", tick.DedupKey(), expected)
	}

	// Sub-second differences collapse to the same key.
	other := tick
	other.Timestamp = at.Add(400 * time.Millisecond)
	if other.DedupKey() != tick.DedupKey() {
		t.Error("Ticks within the same second should share a dedup key")
	}
}

func TestCandleLifecycle(t *testing.T) {
	period := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	candle := NewCandle("EURUSD", "M1", period, decimal.NewFromInt(100))

	if candle.Volume != 1 {
		t.Errorf("Seeded candle volume = %d, expected 1", candle.Volume)
	}
	if !candle.Open.Equal(candle.Close) || !candle.High.Equal(candle.Low) {
		t.Error("Seeded candle should have all prices equal")
	}

	candle.ApplyTick(decimal.NewFromInt(110))
	candle.ApplyTick(decimal.NewFromInt(95))
	candle.ApplyTick(decimal.NewFromInt(105))

	if !candle.High.Equal(decimal.NewFromInt(110)) {
		t.Errorf("Expected high 110, got %s", candle.High)
	}
	if !candle.Low.Equal(decimal.NewFromInt(95)) {
		t.Errorf("Expected low 95, got %s", candle.Low)
	}
	if !candle.Close.Equal(decimal.NewFromInt(105)) {
		t.Errorf("Expected close 105, got %s", candle.Close)
	}
	if candle.Volume != 4 {
		t.Errorf("Expected volume 4, got %d", candle.Volume)
	}
	if err := candle.Validate(); err != nil {
		t.Errorf("Aggregated candle failed validation: %v", err)
	}
}

func TestSeedFromClose(t *testing.T) {
	period := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := NewCandle("EURUSD", "M1", period, decimal.NewFromInt(100))
	prev.ApplyTick(decimal.NewFromInt(104))

	next := SeedFromClose(prev, period.Add(time.Minute))
	if !next.Open.Equal(decimal.NewFromInt(104)) {
		t.Errorf("Seeded open should be the previous close, got %s", next.Open)
	}
	if next.Volume != 0 {
		t.Errorf("Seeded volume should reset to 0, got %d", next.Volume)
	}
	if !next.Timestamp.Equal(period.Add(time.Minute)) {
		t.Errorf("Seeded period wrong: %v", next.Timestamp)
	}
}

func TestCandleValidateInvariants(t *testing.T) {
	period := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		candle Candle
	}{
		{
			"High below low",
			Candle{Symbol: "EURUSD", Timeframe: "M1", Timestamp: period,
				Open: decimal.NewFromInt(5), High: decimal.NewFromInt(4),
				Low: decimal.NewFromInt(6), Close: decimal.NewFromInt(5)},
		},
		{
			"Open outside range",
			Candle{Symbol: "EURUSD", Timeframe: "M1", Timestamp: period,
				Open: decimal.NewFromInt(20), High: decimal.NewFromInt(10),
				Low: decimal.NewFromInt(5), Close: decimal.NewFromInt(7)},
		},
		{
			"Negative volume",
			Candle{Symbol: "EURUSD", Timeframe: "M1", Timestamp: period,
				Open: decimal.NewFromInt(5), High: decimal.NewFromInt(5),
				Low: decimal.NewFromInt(5), Close: decimal.NewFromInt(5), Volume: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.candle.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}
