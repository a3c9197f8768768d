// Package timeframe defines the fixed bar durations the service works with
// and the pure conversion between them.
package timeframe

import "strings"

// Timeframe is a fixed bar duration.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

// All lists the supported timeframes, finest first. Order matters: the
// ingestion fan-out walks this slice and converts from M1 upward.
var All = []Timeframe{M1, M5, M15, H1, H4, D1}

// Config is the static per-timeframe metadata.
type Config struct {
	// Minutes is the bar duration in minutes.
	Minutes int

	// Retention is how long the timeframe's bucket keeps data.
	Retention string
}

// Configs is the process-wide constant table. Finer timeframes expire
// sooner; daily bars are kept a full year.
var Configs = map[Timeframe]Config{
	M1:  {Minutes: 1, Retention: "7d"},
	M5:  {Minutes: 5, Retention: "14d"},
	M15: {Minutes: 15, Retention: "30d"},
	H1:  {Minutes: 60, Retention: "90d"},
	H4:  {Minutes: 240, Retention: "180d"},
	D1:  {Minutes: 1440, Retention: "365d"},
}

// Minutes returns the bar duration in minutes, or 0 for an unknown timeframe.
func (tf Timeframe) Minutes() int {
	return Configs[tf].Minutes
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := Configs[tf]
	return ok
}

// BucketName returns the deterministic store partition name for a
// timeframe, e.g. BucketName("market_data", M1) == "market_data_m1".
func BucketName(prefix string, tf Timeframe) string {
	return prefix + "_" + strings.ToLower(string(tf))
}

// TickBucketName returns the flat bucket raw ticks are written to.
func TickBucketName(prefix string) string {
	return prefix + "_ticks"
}
