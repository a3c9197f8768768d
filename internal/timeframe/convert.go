package timeframe

import (
	"fmt"

	"github.com/agentictrader/marketdata/internal/models"
)

// Convert aggregates an ordered sequence of fromMinutes-resolution rows
// into toMinutes-resolution rows. toMinutes must be a positive integer
// multiple of fromMinutes.
//
// Rows are partitioned into consecutive chunks of ratio = toMinutes /
// fromMinutes input rows. A trailing partial chunk is still emitted as one
// best-effort candle built from whatever rows remain, so a non-empty input
// always yields at least one output row. Per chunk: timestamp and open come
// from the first row, high is the max of highs, low the min of lows, close
// the last row's close, volume the sum of volumes.
//
// Convert is pure and deterministic: identical input yields identical
// output, which keeps retried and replayed backfills idempotent.
func Convert(rows []models.Row, fromMinutes, toMinutes int) ([]models.Row, error) {
	if fromMinutes <= 0 || toMinutes <= 0 {
		return nil, fmt.Errorf("%w: %dm to %dm", models.ErrInvalidTimeframe, fromMinutes, toMinutes)
	}
	if toMinutes%fromMinutes != 0 {
		return nil, fmt.Errorf("%w: %dm is not a multiple of %dm", models.ErrInvalidTimeframe, toMinutes, fromMinutes)
	}
	ratio := toMinutes / fromMinutes
	if ratio < 1 {
		return nil, fmt.Errorf("%w: cannot convert %dm down to %dm", models.ErrInvalidTimeframe, fromMinutes, toMinutes)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	result := make([]models.Row, 0, (len(rows)+ratio-1)/ratio)
	for start := 0; start < len(rows); start += ratio {
		end := start + ratio
		if end > len(rows) {
			end = len(rows)
		}
		result = append(result, mergeChunk(rows[start:end]))
	}
	return result, nil
}

// mergeChunk folds a non-empty chunk of rows into a single coarser row.
func mergeChunk(chunk []models.Row) models.Row {
	merged := models.Row{
		Timestamp: chunk[0].Timestamp,
		Open:      chunk[0].Open,
		High:      chunk[0].High,
		Low:       chunk[0].Low,
		Close:     chunk[len(chunk)-1].Close,
	}
	for _, row := range chunk {
		if row.High.GreaterThan(merged.High) {
			merged.High = row.High
		}
		if row.Low.LessThan(merged.Low) {
			merged.Low = row.Low
		}
		merged.Volume += row.Volume
	}
	return merged
}

// Align converts base M1 rows into every requested timeframe and returns
// the result keyed by timeframe. Only timeframes for which at least one
// full conversion ratio's worth of rows exists are included; this keeps
// cold starts from producing degenerate single-row candles for the coarse
// timeframes.
func Align(rows []models.Row, timeframes []Timeframe) (map[Timeframe][]models.Row, error) {
	if len(rows) == 0 {
		return nil, models.ErrEmptyData
	}

	result := make(map[Timeframe][]models.Row, len(timeframes))
	for _, tf := range timeframes {
		if !tf.Valid() {
			return nil, fmt.Errorf("%w: unknown timeframe %q", models.ErrInvalidTimeframe, tf)
		}
		minutes := tf.Minutes()
		if len(rows) < minutes {
			continue
		}
		if tf == M1 {
			result[tf] = rows
			continue
		}
		converted, err := Convert(rows, M1.Minutes(), minutes)
		if err != nil {
			return nil, err
		}
		result[tf] = converted
	}
	return result, nil
}
