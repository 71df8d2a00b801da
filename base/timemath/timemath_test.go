package timemath_test

import (
	"math"
	"testing"
	"time"

	"example.com/timesync/base/timemath"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    time.Duration
	}{
		{1.5, 1500 * time.Millisecond},
		{1, time.Second},
		{0, 0},
		{-1, -time.Second},
		{-1.5, -1500 * time.Millisecond},
	}

	for _, tt := range tests {
		got := timemath.Duration(tt.seconds)
		if got != tt.want {
			t.Errorf("timemath.Duration(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestSeconds(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     float64
	}{
		{1500 * time.Millisecond, 1.5},
		{time.Second, 1},
		{0, 0},
		{-time.Second, -1},
		{-1500 * time.Millisecond, -1.5},
	}

	for _, tt := range tests {
		got := timemath.Seconds(tt.duration)
		if got != tt.want {
			t.Errorf("timemath.Seconds(%v) = %v, want %v", tt.duration, got, tt.want)
		}
	}
}

func TestMidpoint(t *testing.T) {
	tests := []struct {
		x, y time.Duration
		want time.Duration
	}{
		{0, 2 * time.Second, time.Second},
		{-time.Second, time.Second, 0},
		{math.MaxInt64 - 2, math.MaxInt64, math.MaxInt64 - 1},
		{time.Second, time.Second, time.Second},
	}

	for _, tt := range tests {
		got := timemath.Midpoint(tt.x, tt.y)
		if got != tt.want {
			t.Errorf("timemath.Midpoint(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		ds   []time.Duration
		want time.Duration
	}{
		{[]time.Duration{time.Second}, time.Second},
		{[]time.Duration{3 * time.Second, time.Second, 2 * time.Second}, 2 * time.Second},
		{[]time.Duration{4 * time.Second, time.Second, 2 * time.Second, 3 * time.Second}, 2500 * time.Millisecond},
		{[]time.Duration{-time.Second, time.Second}, 0},
	}

	for _, tt := range tests {
		got := timemath.Median(tt.ds)
		if got != tt.want {
			t.Errorf("timemath.Median(%v) = %v, want %v", tt.ds, got, tt.want)
		}
	}
}

func TestMedianEmpty(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("timemath.Median(nil) did not panic")
		}
	}()
	timemath.Median(nil)
}
