package measurements

// Clock filter based on RFC 5905, Section 10, and the lucky packet filter
// from flashptpd, https://github.com/meinberg-sync/flashptpd
//
// The filter keeps the most recent measurements of a peer in a FIFO window
// and selects the one with the lowest round trip delay, assuming that it
// experienced the least amount of queuing. Dispersion of older samples grows
// with their age. Jitter is the RMS difference between the offsets in the
// window and the offset of the selected sample.

import (
	"cmp"
	"slices"

	"example.com/timesync/base/floats"
	"example.com/timesync/base/ntptime"
)

const DefaultFilterStages = 8

type Estimate struct {
	Offset     ntptime.Duration
	Delay      ntptime.Duration
	Dispersion ntptime.Duration
	Jitter     ntptime.Duration
	LocalTime  ntptime.Instant
}

type sample struct {
	off  ntptime.Duration
	rtd  ntptime.Duration
	disp ntptime.Duration
	at   ntptime.Instant
}

type ClockFilter struct {
	state  []sample
	sorted []sample
}

func NewClockFilter(stages int) *ClockFilter {
	if stages <= 0 {
		panic("stages must be greater than 0")
	}
	return &ClockFilter{
		state:  make([]sample, 0, stages),
		sorted: make([]sample, 0, stages),
	}
}

func (f *ClockFilter) Len() int {
	return len(f.state)
}

func (f *ClockFilter) Add(m Measurement) Estimate {
	if len(f.state) == cap(f.state) {
		copy(f.state, f.state[1:])
		f.state = f.state[:len(f.state)-1]
	}
	f.state = append(f.state, sample{
		off:  m.Offset,
		rtd:  m.Delay,
		disp: m.Dispersion,
		at:   m.LocalTime,
	})

	f.sorted = f.sorted[:len(f.state)]
	for i, s := range f.state {
		s.disp += ntptime.Phi.Dispersion(m.LocalTime.Since(s.at))
		f.sorted[i] = s
	}
	slices.SortStableFunc(f.sorted, func(a, b sample) int {
		return cmp.Compare(a.rtd, b.rtd)
	})

	best := f.sorted[0]
	var disp ntptime.Duration
	for i := len(f.sorted) - 1; i >= 0; i-- {
		disp = (disp + f.sorted[i].disp) / 2
	}
	offs := make([]float64, 0, len(f.sorted)-1)
	for _, s := range f.sorted[1:] {
		offs = append(offs, s.off.Seconds())
	}
	return Estimate{
		Offset:     best.off,
		Delay:      best.rtd,
		Dispersion: disp,
		Jitter:     ntptime.DurationFromSeconds(floats.RMSDeviation(offs, best.off.Seconds())),
		LocalTime:  m.LocalTime,
	}
}

func (f *ClockFilter) Reset() {
	f.state = f.state[:0]
	f.sorted = f.sorted[:0]
}
