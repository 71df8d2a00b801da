package timebase

import (
	"errors"

	"example.com/timesync/base/ntptime"
)

var (
	// ErrPermission is returned when the process lacks the privilege to
	// modify the clock.
	ErrPermission = errors.New("insufficient privilege to adjust clock")
	// ErrRejected is returned when the clock refuses a value, e.g. an out of
	// range frequency.
	ErrRejected = errors.New("clock adjustment rejected")
)

// LocalClock is the local clock as seen by the synchronization core.
//
// Epoch is incremented on every step, so that readings taken before a step can
// be recognized as stale.
type LocalClock interface {
	Epoch() uint64
	Now() ntptime.Instant
	Step(offset ntptime.Duration) error
	AdjustFrequency(ppm float64) error
}
