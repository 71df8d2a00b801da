package floats

import (
	"math"
)

// WeightedMean returns the mean of xs weighted by ws.
func WeightedMean(xs, ws []float64) float64 {
	if len(xs) == 0 || len(xs) != len(ws) {
		panic("unexpected number of values")
	}
	var sx, sw float64
	for i, x := range xs {
		sx += ws[i] * x
		sw += ws[i]
	}
	if sw <= 0 {
		panic("unexpected weights")
	}
	return sx / sw
}

// RMSDeviation returns the root mean square of the differences between the
// values in xs and ref, or 0 if xs is empty.
func RMSDeviation(xs []float64, ref float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += (x - ref) * (x - ref)
	}
	return math.Sqrt(s / float64(len(xs)))
}
