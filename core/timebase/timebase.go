package timebase

import (
	"sync/atomic"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/base/timebase"
)

type registeredClock struct {
	c timebase.LocalClock
}

var (
	lclk atomic.Pointer[registeredClock]
)

func RegisterClock(c timebase.LocalClock) {
	if c == nil {
		panic("local clock must not be nil")
	}
	swapped := lclk.CompareAndSwap(nil, &registeredClock{c: c})
	if !swapped {
		panic("local clock already registered")
	}
}

func Clock() timebase.LocalClock {
	r := lclk.Load()
	if r == nil {
		panic("no local clock registered")
	}
	return r.c
}

func Now() ntptime.Instant {
	return Clock().Now()
}

func Epoch() uint64 {
	return Clock().Epoch()
}
