package util //nolint:revive // package name util hosts shared formatting helpers used by the admin CLI

import "time"

// FormatElapsed renders a job duration for operators. Zero or negative
// durations render as "-"; sub-millisecond values keep full precision.
func FormatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	case d < time.Minute:
		return d.Truncate(time.Millisecond).String()
	default:
		return d.Truncate(time.Second).String()
	}
}
