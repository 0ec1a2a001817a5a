package ntrcutil_test

import (
	"testing"
	"time"

	"github.com/peterbourgon/ntrc/internal/ntrcutil"
)

func TestHumanizeDuration(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		input time.Duration
		want  string
	}{
		{-time.Second, "0s"},
		{0, "0s"},
		{750 * time.Nanosecond, "750ns"},
		{1234 * time.Nanosecond, "1µs"},
		{789_456 * time.Nanosecond, "789µs"},
		{1_234_567 * time.Nanosecond, "1.23ms"},
		{45_678_901 * time.Nanosecond, "45.6ms"},
		{123_456_789 * time.Nanosecond, "123ms"},
		{1_234_567_890 * time.Nanosecond, "1.23s"},
		{12_345_678_901 * time.Nanosecond, "12.3s"},
		{61*time.Second + 234*time.Millisecond, "1m1.2s"},
		{2*time.Hour + 3*time.Minute + 4*time.Second + 5*time.Millisecond, "2h3m4s"},
	} {
		t.Run(tc.input.String(), func(t *testing.T) {
			if want, have := tc.want, ntrcutil.HumanizeDuration(tc.input); want != have {
				t.Errorf("want %q, have %q", want, have)
			}
		})
	}
}

func TestHumanizeBytes(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		input int
		want  string
	}{
		{0, "0B"},
		{512, "512B"},
		{1024, "1.0KB"},
		{1536, "1.5KB"},
		{3 * 1024 * 1024, "3.0MB"},
	} {
		if want, have := tc.want, ntrcutil.HumanizeBytes(tc.input); want != have {
			t.Errorf("%d: want %q, have %q", tc.input, want, have)
		}
	}
}
