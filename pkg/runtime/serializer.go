package runtime

import (
	"time"
)

const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// LatencyMs returns the whole milliseconds elapsed since start.
func LatencyMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
