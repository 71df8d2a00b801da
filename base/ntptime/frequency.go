package ntptime

import (
	"time"
)

// FrequencyTolerance is a bound on a clock frequency error in parts per
// million.
type FrequencyTolerance float64

// Phi is the frequency tolerance assumed for clocks when aging dispersion.
const Phi FrequencyTolerance = 15

func (f FrequencyTolerance) PPM() float64 {
	return float64(f)
}

// Dispersion returns the error accumulated at tolerance f over elapsed.
func (f FrequencyTolerance) Dispersion(elapsed time.Duration) Duration {
	if elapsed < 0 {
		elapsed = 0
	}
	return DurationFromSeconds(elapsed.Seconds() * float64(f) * 1e-6)
}

// DispersionOf returns the error accumulated at tolerance f over a span
// given as a fixed point duration.
func (f FrequencyTolerance) DispersionOf(d Duration) Duration {
	return d.Abs().Scale(float64(f) * 1e-6)
}
