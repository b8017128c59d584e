package media

import (
	"fmt"
	"time"
)

// TicksPerSecond is the resolution of the server's tick unit (100ns).
const TicksPerSecond int64 = 10_000_000

// TicksPerMillisecond converts between ticks and milliseconds.
const TicksPerMillisecond int64 = TicksPerSecond / 1000

// TicksToMilliseconds converts server ticks to whole milliseconds.
func TicksToMilliseconds(ticks int64) int64 {
	return ticks / TicksPerMillisecond
}

// TicksToDuration converts server ticks to a time.Duration.
func TicksToDuration(ticks int64) time.Duration {
	// 1 tick == 100ns
	return time.Duration(ticks) * 100
}

// DurationToTicks converts a time.Duration to server ticks.
func DurationToTicks(d time.Duration) int64 {
	return int64(d / 100)
}

// FormatTicks renders ticks as HH:MM:SS.
func FormatTicks(ticks int64) string {
	d := TicksToDuration(ticks)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
