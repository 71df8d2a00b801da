package clock

import (
	"sync"
	"time"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/base/timebase"
)

// VirtualClock is a software clock on top of the system clock. Steps and
// frequency adjustments only affect the VirtualClock itself.
type VirtualClock struct {
	mu     sync.Mutex
	start  time.Time
	base   ntptime.Timestamp
	epoch  uint64
	offset ntptime.Duration
	ppm    float64
	// mono reading at the last frequency change
	since time.Duration
}

var _ timebase.LocalClock = (*VirtualClock)(nil)

func NewVirtualClock() *VirtualClock {
	now := time.Now()
	return &VirtualClock{
		start: now,
		base:  ntptime.TimestampFromTime(now),
	}
}

func (c *VirtualClock) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// drift returns the correction accumulated at the current frequency up to
// mono.
func (c *VirtualClock) drift(mono time.Duration) ntptime.Duration {
	return ntptime.DurationFromStd(mono - c.since).Scale(c.ppm * 1e-6)
}

func (c *VirtualClock) Now() ntptime.Instant {
	c.mu.Lock()
	defer c.mu.Unlock()
	mono := time.Since(c.start)
	wall := c.base.Add(ntptime.DurationFromStd(mono) + c.offset + c.drift(mono))
	return ntptime.NewInstant(mono, wall, c.epoch)
}

func (c *VirtualClock) Step(offset ntptime.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += offset
	c.epoch++
	return nil
}

func (c *VirtualClock) AdjustFrequency(ppm float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	mono := time.Since(c.start)
	c.offset += c.drift(mono)
	c.since = mono
	c.ppm = ppm
	return nil
}

// Frequency returns the frequency offset currently in effect in ppm.
func (c *VirtualClock) Frequency() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ppm, nil
}
