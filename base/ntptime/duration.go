package ntptime

import (
	"math"
	"time"
)

// Duration is a signed span of time in 32.32 fixed point seconds.
type Duration int64

const (
	MaxDuration Duration = math.MaxInt64
	MinDuration Duration = math.MinInt64

	fracPerSecond = 1 << 32
)

func DurationFromSeconds(s float64) Duration {
	v := s * fracPerSecond
	switch {
	case math.IsNaN(v):
		panic("unexpected duration value")
	case v >= math.MaxInt64:
		return MaxDuration
	case v <= math.MinInt64:
		return MinDuration
	default:
		return Duration(v)
	}
}

func DurationFromStd(d time.Duration) Duration {
	sec := int64(d / time.Second)
	nsec := int64(d % time.Second)
	if sec >= 1<<31 {
		return MaxDuration
	}
	if sec < -(1 << 31) {
		return MinDuration
	}
	return Duration(sec<<32 + nsec<<32/nanosecondsPerSecond)
}

// DurationFromShort converts an NTP short format value (16.16 fixed point, as
// used for root delay and root dispersion) to a Duration.
func DurationFromShort(v uint32) Duration {
	return Duration(int64(v) << 16)
}

// Short converts d to NTP short format. Negative values map to 0 and values
// out of range saturate.
func (d Duration) Short() uint32 {
	switch {
	case d <= 0:
		return 0
	case d>>16 > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(d >> 16)
	}
}

// Precision returns the duration 2^exp seconds.
func Precision(exp int8) Duration {
	switch {
	case exp >= 31:
		return MaxDuration
	case exp <= -32:
		return 1
	default:
		return Duration(1) << (32 + int(exp))
	}
}

func (d Duration) Seconds() float64 {
	return float64(d) / fracPerSecond
}

func (d Duration) Std() time.Duration {
	sec := int64(d >> 32)
	frac := int64(d & 0xffff_ffff)
	return time.Duration(sec)*time.Second +
		time.Duration((frac*nanosecondsPerSecond+1<<31)>>32)
}

func (d Duration) Abs() Duration {
	switch {
	case d == MinDuration:
		return MaxDuration
	case d < 0:
		return -d
	default:
		return d
	}
}

func (d Duration) Scale(f float64) Duration {
	return DurationFromSeconds(d.Seconds() * f)
}

func (d Duration) String() string {
	return d.Std().String()
}

func Midpoint(x, y Duration) Duration {
	return x + (y-x)/2
}
