package measurements_test

import (
	"testing"
	"time"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/core/measurements"
)

func sampleAt(sec int, off, rtd float64) measurements.Measurement {
	return measurements.Measurement{
		Offset:    ntptime.DurationFromSeconds(off),
		Delay:     ntptime.DurationFromSeconds(rtd),
		LocalTime: ntptime.NewInstant(time.Duration(sec)*time.Second, 0, 0),
	}
}

func TestClockFilterSingleSample(t *testing.T) {
	f := measurements.NewClockFilter(measurements.DefaultFilterStages)
	m := sampleAt(0, 0.010, 0.020)
	e := f.Add(m)
	if e.Offset != m.Offset || e.Delay != m.Delay {
		t.Errorf("got %v/%v, want %v/%v", e.Offset, e.Delay, m.Offset, m.Delay)
	}
	if e.Jitter != 0 {
		t.Errorf("e.Jitter = %v, want 0", e.Jitter)
	}
}

func TestClockFilterPicksMinimumDelay(t *testing.T) {
	f := measurements.NewClockFilter(3)
	f.Add(sampleAt(0, 0.050, 0.100))
	f.Add(sampleAt(1, 0.010, 0.020))
	e := f.Add(sampleAt(2, 0.030, 0.060))
	if !near(e.Offset.Seconds(), 0.010, eps) {
		t.Errorf("e.Offset = %v, want 10ms", e.Offset)
	}
	if e.Jitter <= 0 {
		t.Errorf("e.Jitter = %v, want > 0", e.Jitter)
	}
	// the lucky sample leaves the window
	f.Add(sampleAt(3, 0.040, 0.080))
	e = f.Add(sampleAt(4, 0.045, 0.090))
	if !near(e.Offset.Seconds(), 0.030, eps) {
		t.Errorf("e.Offset = %v, want 30ms", e.Offset)
	}
	if f.Len() != 3 {
		t.Errorf("f.Len() = %d, want 3", f.Len())
	}
}

func TestClockFilterAgesDispersion(t *testing.T) {
	f := measurements.NewClockFilter(2)
	f.Add(sampleAt(0, 0.010, 0.010))
	e := f.Add(sampleAt(1000, 0.010, 0.020))
	// selected sample aged by 1000 s at 15 ppm
	if !near(e.Dispersion.Seconds(), 0.015/2, 1e-6) {
		t.Errorf("e.Dispersion = %v, want 7.5ms", e.Dispersion)
	}
}

func TestClockFilterReset(t *testing.T) {
	f := measurements.NewClockFilter(4)
	f.Add(sampleAt(0, 0.010, 0.001))
	f.Reset()
	if f.Len() != 0 {
		t.Errorf("f.Len() = %d, want 0", f.Len())
	}
	m := sampleAt(1, 0.5, 0.1)
	if e := f.Add(m); e.Offset != m.Offset {
		t.Errorf("e.Offset = %v, want %v", e.Offset, m.Offset)
	}
}
