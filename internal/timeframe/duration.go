package timeframe

import (
	"fmt"
	"strconv"
)

// ParseDuration converts a retention duration string of the form
// "<integer><unit>" (unit one of s, m, h, d) to seconds.
func ParseDuration(duration string) (int64, error) {
	if len(duration) < 2 {
		return 0, fmt.Errorf("invalid duration %q: must be <integer><unit>", duration)
	}

	unit := duration[len(duration)-1]
	value, err := strconv.ParseInt(duration[:len(duration)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", duration, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid duration %q: value must be positive", duration)
	}

	switch unit {
	case 'd':
		return value * 24 * 60 * 60, nil
	case 'h':
		return value * 60 * 60, nil
	case 'm':
		return value * 60, nil
	case 's':
		return value, nil
	default:
		return 0, fmt.Errorf("invalid duration %q: unit must be one of s, m, h, d", duration)
	}
}

// FormatDuration converts seconds to a duration string, collapsing to the
// coarsest unit that divides evenly. The canonical per-timeframe retention
// values round-trip exactly through ParseDuration and FormatDuration.
func FormatDuration(seconds int64) string {
	if seconds == 0 {
		return "0s"
	}
	if seconds%60 != 0 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 || minutes%60 != 0 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 || hours%24 != 0 {
		return fmt.Sprintf("%dh", hours)
	}

	return fmt.Sprintf("%dd", hours/24)
}
