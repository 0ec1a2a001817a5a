package ntrc

import "time"

// SetClock replaces the clock used for call timing, and returns a function
// that restores the original.
func SetClock(now func() time.Time) (restore func()) {
	prev := nowFunc
	nowFunc = now
	return func() { nowFunc = prev }
}
