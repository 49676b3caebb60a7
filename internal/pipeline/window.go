package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe selects how far back a request looks.
type Timeframe string

const (
	TimeframeDaily   Timeframe = "daily"
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
	TimeframeAll     Timeframe = "all"
)

// ParseTimeframe validates a caller-supplied timeframe string. An empty
// string defaults to all.
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return TimeframeAll, nil
	case TimeframeDaily:
		return TimeframeDaily, nil
	case TimeframeWeekly:
		return TimeframeWeekly, nil
	case TimeframeMonthly:
		return TimeframeMonthly, nil
	case TimeframeAll:
		return TimeframeAll, nil
	default:
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
}

// TimeWindow is a half-open-in-spirit UTC window in epoch seconds.
// End is always strictly greater than Start.
type TimeWindow struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// WindowFor derives the UTC window for a timeframe at the given instant.
// Daily, weekly and monthly windows are calendar-aligned: UTC midnight,
// the most recent Monday, and the first of the month. The all timeframe
// spans from epoch zero.
func WindowFor(tf Timeframe, now time.Time) (TimeWindow, error) {
	now = now.UTC()
	end := now.Unix() + 1

	switch tf {
	case TimeframeDaily:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return TimeWindow{Start: start.Unix(), End: end}, nil
	case TimeframeWeekly:
		daysSinceMonday := (int(now.Weekday()) + 6) % 7
		monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -daysSinceMonday)
		return TimeWindow{Start: monday.Unix(), End: end}, nil
	case TimeframeMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return TimeWindow{Start: start.Unix(), End: end}, nil
	case TimeframeAll:
		return TimeWindow{Start: 0, End: end}, nil
	default:
		return TimeWindow{}, fmt.Errorf("unknown timeframe %q", tf)
	}
}
