package cli

import (
	"testing"
	"time"
)

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{15 * time.Second, "0:15"},
		{75 * time.Second, "1:15"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatDurationShort(tt.d); got != tt.want {
			t.Errorf("FormatDurationShort(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pct  int
		want string
	}{
		{0, "[----------]   0%"},
		{50, "[#####-----]  50%"},
		{100, "[##########] 100%"},
		{140, "[##########] 100%"},
		{-3, "[----------]   0%"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.pct, 10); got != tt.want {
			t.Errorf("ProgressBar(%d) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}
