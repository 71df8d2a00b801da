//go:build !linux

package clock

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/base/timebase"
)

var (
	errUnsupported = fmt.Errorf("%w: %w", timebase.ErrRejected, errors.ErrUnsupported)
	start          = time.Now()
)

// SystemClock reads the system clock. Adjustments are not supported on this
// platform.
type SystemClock struct {
	Log *zap.Logger
}

var _ timebase.LocalClock = (*SystemClock)(nil)

func (c *SystemClock) Epoch() uint64 {
	return 0
}

func (c *SystemClock) Now() ntptime.Instant {
	now := time.Now()
	return ntptime.NewInstant(now.Sub(start), ntptime.TimestampFromTime(now), 0)
}

func (c *SystemClock) Step(offset ntptime.Duration) error {
	return errUnsupported
}

func (c *SystemClock) AdjustFrequency(ppm float64) error {
	return errUnsupported
}

func (c *SystemClock) Frequency() (float64, error) {
	return 0, nil
}
