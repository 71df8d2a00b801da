package measurements_test

import (
	"math"
	"testing"
	"time"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/core/measurements"
)

func at(ms int64) ntptime.Timestamp {
	t0 := ntptime.TimestampFromParts(3_900_000_000, 0)
	return t0.Add(ntptime.DurationFromStd(time.Duration(ms) * time.Millisecond))
}

func near(x, y, eps float64) bool {
	return math.Abs(x-y) <= eps
}

const eps = 1e-9

func TestFromExchange(t *testing.T) {
	tests := []struct {
		t1, t2, t3, t4 int64
		offset, delay  float64
	}{
		{0, 10, 10, 20, 0, 0.020},
		{0, 15, 15, 20, 0.005, 0.020},
		{0, 5, 6, 20, -0.0045, 0.019},
		{100, 1100, 1101, 110, 0.9955, 0.009},
		{0, 0, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		x := measurements.Exchange{T1: at(tt.t1), T2: at(tt.t2), T3: at(tt.t3), T4: at(tt.t4)}
		m := measurements.FromExchange(x, measurements.Remote{Precision: -20}, 0)
		if !near(m.Offset.Seconds(), tt.offset, eps) {
			t.Errorf("offset(%d, %d, %d, %d) = %v, want %v",
				tt.t1, tt.t2, tt.t3, tt.t4, m.Offset.Seconds(), tt.offset)
		}
		if !near(m.Delay.Seconds(), tt.delay, eps) {
			t.Errorf("delay(%d, %d, %d, %d) = %v, want %v",
				tt.t1, tt.t2, tt.t3, tt.t4, m.Delay.Seconds(), tt.delay)
		}
		if m.DelayClamped {
			t.Errorf("delay(%d, %d, %d, %d) must not be clamped", tt.t1, tt.t2, tt.t3, tt.t4)
		}
	}
}

func TestFromExchangeNegativeDelay(t *testing.T) {
	// server claims to have spent more time than the round trip took
	x := measurements.Exchange{T1: at(0), T2: at(1), T3: at(30), T4: at(20)}
	m := measurements.FromExchange(x, measurements.Remote{}, 0)
	if m.Delay != 0 {
		t.Errorf("m.Delay = %v, want 0", m.Delay)
	}
	if !m.DelayClamped {
		t.Errorf("m.DelayClamped must be set")
	}
}

func TestFromExchangeDispersion(t *testing.T) {
	x := measurements.Exchange{T1: at(0), T2: at(10), T3: at(10), T4: at(1000)}
	r := measurements.Remote{
		Precision:      -10,
		RootDelay:      ntptime.DurationFromSeconds(0.002),
		RootDispersion: ntptime.DurationFromSeconds(0.003),
	}
	lp := ntptime.Precision(-20)
	m := measurements.FromExchange(x, r, lp)
	want := lp.Seconds() + math.Ldexp(1, -10) + 0.990*15e-6
	if !near(m.Dispersion.Seconds(), want, eps) {
		t.Errorf("m.Dispersion = %v, want %v", m.Dispersion.Seconds(), want)
	}
	rd := m.RootDistance().Seconds()
	wantRD := 0.990/2 + want + 0.001 + 0.003
	if !near(rd, wantRD, eps) {
		t.Errorf("m.RootDistance() = %v, want %v", rd, wantRD)
	}
}

func TestFromExchangeAcrossEra(t *testing.T) {
	t1 := ntptime.TimestampFromParts(math.MaxUint32, 0)
	x := measurements.Exchange{
		T1: t1,
		T2: t1.Add(ntptime.DurationFromSeconds(1.5)),
		T3: t1.Add(ntptime.DurationFromSeconds(1.5)),
		T4: t1.Add(ntptime.DurationFromSeconds(2)),
	}
	m := measurements.FromExchange(x, measurements.Remote{}, 0)
	if !near(m.Offset.Seconds(), 0.5, eps) || !near(m.Delay.Seconds(), 2, eps) {
		t.Errorf("unexpected measurement across era: offset %v, delay %v", m.Offset, m.Delay)
	}
}

func TestClockOffsetLargeStep(t *testing.T) {
	local := time.Unix(1, 0)
	server := time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		t1, t4 time.Time
		t2, t3 time.Time
		offset float64
	}{
		{"local behind", local, local.Add(8 * time.Millisecond), server, server,
			server.Sub(local).Seconds() - 0.004},
		{"local ahead", server, server.Add(8 * time.Millisecond), local, local,
			local.Sub(server).Seconds() - 0.004},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := measurements.ClockOffset(
				ntptime.TimestampFromTime(tt.t1), ntptime.TimestampFromTime(tt.t2),
				ntptime.TimestampFromTime(tt.t3), ntptime.TimestampFromTime(tt.t4))
			if !near(got.Seconds(), tt.offset, 1e-6) {
				t.Errorf("ClockOffset() = %.6fs, want %.6fs", got.Seconds(), tt.offset)
			}
		})
	}
}
