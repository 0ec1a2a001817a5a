package ntrcutil

import (
	"fmt"
	"time"
)

// TruncateDuration truncates d to a precision that depends on its magnitude,
// so that traces show about three significant digits, e.g. 1.23s, 45.6ms, or
// 789µs.
func TruncateDuration(d time.Duration) time.Duration {
	switch {
	case d >= time.Hour:
		return d.Truncate(time.Second)
	case d >= 10*time.Second:
		return d.Truncate(100 * time.Millisecond)
	case d >= time.Second:
		return d.Truncate(10 * time.Millisecond)
	case d >= 100*time.Millisecond:
		return d.Truncate(time.Millisecond)
	case d >= 10*time.Millisecond:
		return d.Truncate(100 * time.Microsecond)
	case d >= time.Millisecond:
		return d.Truncate(10 * time.Microsecond)
	case d >= time.Microsecond:
		return d.Truncate(time.Microsecond)
	default:
		return d
	}
}

// HumanizeDuration returns the truncated duration as a string. Negative
// durations are treated as zero.
func HumanizeDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return TruncateDuration(d).String()
}

// HumanizeBytes returns n, assumed to be a number of bytes, as a short string
// using B, KB (1024 bytes), or MB (1048576 bytes).
func HumanizeBytes[T ~int | ~int64 | ~uint64](n T) string {
	const (
		kib = 1024
		mib = 1024 * kib
	)
	switch f := float64(n); {
	case f < kib:
		return fmt.Sprintf("%dB", int64(n))
	case f < mib:
		return fmt.Sprintf("%.1fKB", f/kib)
	default:
		return fmt.Sprintf("%.1fMB", f/mib)
	}
}
