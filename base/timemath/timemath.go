// Package timemath converts between float seconds and time.Duration values
// and computes order statistics over durations.
package timemath

import (
	"slices"
	"time"
)

// Duration converts seconds to a time.Duration, truncating to nanoseconds.
func Duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func Seconds(d time.Duration) float64 {
	return d.Seconds()
}

// Midpoint returns the value halfway between x and y without overflowing.
func Midpoint(x, y time.Duration) time.Duration {
	return x + (y-x)/2
}

// Median sorts ds in place and returns its median.
func Median(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		panic("unexpected number of values")
	}
	slices.Sort(ds)
	i := len(ds) / 2
	if len(ds)%2 == 0 {
		return Midpoint(ds[i-1], ds[i])
	}
	return ds[i]
}
