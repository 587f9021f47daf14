package usage

import (
	"fmt"
	"time"
)

// Periods lists the accepted period names in display order.
var Periods = []string{"today", "yesterday", "week", "month", "all"}

// ParsePeriod converts a period name into a [start, end) window relative
// to now. An empty period means "all".
func ParsePeriod(period string, now time.Time) (time.Time, time.Time, error) {
	end := now.Add(time.Minute) // slight future buffer for in-flight records
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch period {
	case "today":
		return midnight, end, nil
	case "yesterday":
		return midnight.AddDate(0, 0, -1), midnight, nil
	case "week":
		return now.AddDate(0, 0, -7), end, nil
	case "month":
		return now.AddDate(0, -1, 0), end, nil
	case "", "all":
		return time.Time{}, end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q (valid: %v)", period, Periods)
	}
}

// FormatTokenCount formats a token count compactly ("1.23M", "456.0K", "789").
func FormatTokenCount(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000.0)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000.0)
	}
	return fmt.Sprintf("%d", n)
}
