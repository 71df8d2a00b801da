package clock_test

import (
	"testing"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/driver/clock"
)

func TestVirtualClockStep(t *testing.T) {
	c := clock.NewVirtualClock()
	before := c.Now()
	if err := c.Step(ntptime.DurationFromSeconds(10)); err != nil {
		t.Fatalf("Step() failed: %v", err)
	}
	after := c.Now()
	if after.Epoch() != before.Epoch()+1 {
		t.Errorf("Step(): epoch = %d, want %d", after.Epoch(), before.Epoch()+1)
	}
	d := after.Wall().Sub(before.Wall()) - ntptime.DurationFromStd(after.Since(before))
	if (d - ntptime.DurationFromSeconds(10)).Abs() > ntptime.DurationFromSeconds(1e-6) {
		t.Errorf("Step(): wall clock moved by %v beyond elapsed time, want 10s", d)
	}
}

func TestVirtualClockFrequency(t *testing.T) {
	c := clock.NewVirtualClock()
	if err := c.AdjustFrequency(100); err != nil {
		t.Fatalf("AdjustFrequency() failed: %v", err)
	}
	ppm, err := c.Frequency()
	if err != nil || ppm != 100 {
		t.Errorf("Frequency() = %v, %v, want 100", ppm, err)
	}
	if c.Epoch() != 0 {
		t.Errorf("AdjustFrequency() changed epoch to %d", c.Epoch())
	}
}
