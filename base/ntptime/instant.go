package ntptime

import (
	"time"
)

// Instant is a reading of the local clock: a monotonic component that is not
// affected by steps, the wall clock timestamp taken at the same moment and the
// number of steps the clock has seen so far.
type Instant struct {
	mono  time.Duration
	wall  Timestamp
	epoch uint64
}

func NewInstant(mono time.Duration, wall Timestamp, epoch uint64) Instant {
	return Instant{mono: mono, wall: wall, epoch: epoch}
}

func (i Instant) Mono() time.Duration { return i.mono }

func (i Instant) Wall() Timestamp { return i.wall }

func (i Instant) Epoch() uint64 { return i.epoch }

func (i Instant) IsZero() bool {
	return i == Instant{}
}

// Since returns the monotonic time elapsed between earlier and i.
func (i Instant) Since(earlier Instant) time.Duration {
	return i.mono - earlier.mono
}

func (i Instant) Before(j Instant) bool {
	return i.mono < j.mono
}

// Add returns the instant d later on both time lines, assuming no step.
func (i Instant) Add(d time.Duration) Instant {
	return Instant{
		mono:  i.mono + d,
		wall:  i.wall.Add(DurationFromStd(d)),
		epoch: i.epoch,
	}
}
