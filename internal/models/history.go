package models

import "time"

// TickHistoryRequest describes a windowed historical tick fetch from the
// vendor. Style is "ticks" for raw ticks or "candles" for vendor-side bars.
type TickHistoryRequest struct {
	Symbol          string
	Start           time.Time
	End             time.Time
	Style           string
	Count           int
	AdjustStartTime bool
}

// TickHistoryResponse is a bulk set of historical ticks for one symbol.
// Backfills replay it through the same per-tick pipeline path as live data.
type TickHistoryResponse struct {
	Symbol  string
	Ticks   []Tick
	PipSize int
}
