//go:build linux

package clock

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tklauser/go-sysconf"

	"go.uber.org/zap"

	"golang.org/x/sys/unix"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/base/timebase"
	"example.com/timesync/base/unixutil"
)

// maxFrequencyPPM is the largest frequency offset accepted by the kernel.
const maxFrequencyPPM = 500

// SystemClock adjusts CLOCK_REALTIME via clock_adjtime(2).
type SystemClock struct {
	Log   *zap.Logger
	mu    sync.Mutex
	epoch uint64
}

var _ timebase.LocalClock = (*SystemClock)(nil)

func (c *SystemClock) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

func clockGettime(log *zap.Logger, id int32) unix.Timespec {
	var ts unix.Timespec
	err := unix.ClockGettime(id, &ts)
	if err != nil {
		log.Fatal("unix.ClockGettime failed", zap.Error(err))
	}
	return ts
}

func adjtimeError(err error) error {
	switch {
	case errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %w", timebase.ErrPermission, err)
	case errors.Is(err, unix.EINVAL):
		return fmt.Errorf("%w: %w", timebase.ErrRejected, err)
	default:
		return err
	}
}

func (c *SystemClock) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func (c *SystemClock) Now() ntptime.Instant {
	c.mu.Lock()
	defer c.mu.Unlock()
	mono := clockGettime(c.log(), unix.CLOCK_MONOTONIC)
	wall := clockGettime(c.log(), unix.CLOCK_REALTIME)
	return ntptime.NewInstant(time.Duration(mono.Nano()),
		ntptime.TimestampFromTime(time.Unix(wall.Unix())), c.epoch)
}

func (c *SystemClock) Step(offset ntptime.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log().Debug("setting time", zap.Stringer("offset", offset))
	tx := unix.Timex{
		Modes: unix.ADJ_SETOFFSET | unix.ADJ_NANO,
		Time:  unixutil.TimevalFromNsec(offset.Std().Nanoseconds()),
	}
	_, err := unix.ClockAdjtime(unix.CLOCK_REALTIME, &tx)
	if err != nil {
		return adjtimeError(err)
	}
	if c.epoch == math.MaxUint64 {
		panic("epoch overflow")
	}
	c.epoch++
	return nil
}

// ticks returns the number of clock ticks per second and the nominal tick
// length in microseconds.
func ticks() (perSecond, nominal int64, err error) {
	perSecond, err = sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil {
		return 0, 0, err
	}
	if perSecond <= 0 {
		return 0, 0, fmt.Errorf("unexpected clock ticks per second: %d", perSecond)
	}
	// mirror kernel definition (jiffies.h, USER_TICK_USEC)
	return perSecond, (1_000_000 + perSecond/2) / perSecond, nil
}

// AdjustFrequency sets the frequency correction to ppm, split between the
// tick length and the kernel frequency offset.
func (c *SystemClock) AdjustFrequency(ppm float64) error {
	if math.IsNaN(ppm) || math.Abs(ppm) > maxFrequencyPPM {
		return fmt.Errorf("%w: frequency %v ppm out of range", timebase.ErrRejected, ppm)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	perSecond, nominal, err := ticks()
	if err != nil {
		return err
	}
	// one microsecond per tick changes the frequency by perSecond ppm
	tickDelta := math.Round(ppm / float64(perSecond))
	freq := ppm - float64(perSecond)*tickDelta

	tx := unix.Timex{
		Modes: unix.ADJ_FREQUENCY | unix.ADJ_TICK,
		Freq:  unixutil.ScaledPPMFromFreq(freq * 1e-6),
		Tick:  nominal + int64(tickDelta),
	}
	c.log().Debug("setting frequency",
		zap.Float64("ppm", ppm),
		zap.Int64("freq", tx.Freq),
		zap.Int64("tick", tx.Tick),
	)
	_, err = unix.ClockAdjtime(unix.CLOCK_REALTIME, &tx)
	if err != nil {
		return adjtimeError(err)
	}
	return nil
}

// Frequency returns the frequency correction currently in effect in ppm,
// including any deviation of the tick length from its nominal value.
func (c *SystemClock) Frequency() (float64, error) {
	perSecond, nominal, err := ticks()
	if err != nil {
		return 0, err
	}
	var tx unix.Timex
	_, err = unix.ClockAdjtime(unix.CLOCK_REALTIME, &tx)
	if err != nil {
		return 0, adjtimeError(err)
	}
	return unixutil.FreqFromScaledPPM(tx.Freq)*1e6 +
		float64((tx.Tick-nominal)*perSecond), nil
}
