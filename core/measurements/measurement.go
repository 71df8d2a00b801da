package measurements

import (
	"example.com/timesync/base/ntptime"
)

// Exchange is a matched request/response pair: T1 is the request's local
// transmit time, T2 the server's receive time, T3 the server's transmit time
// and T4 the response's local receive time. LocalTime is the local clock
// reading at T4.
type Exchange struct {
	T1, T2, T3, T4 ntptime.Timestamp
	LocalTime      ntptime.Instant
}

// Remote is the server metadata carried by a response.
type Remote struct {
	Stratum        uint8
	Leap           uint8
	ReferenceID    uint32
	RootDelay      ntptime.Duration
	RootDispersion ntptime.Duration
	Precision      int8
}

type Measurement struct {
	Offset     ntptime.Duration
	Delay      ntptime.Duration
	Dispersion ntptime.Duration
	LocalTime  ntptime.Instant

	Stratum        uint8
	Leap           uint8
	ReferenceID    uint32
	RootDelay      ntptime.Duration
	RootDispersion ntptime.Duration

	// DelayClamped is set if the round trip delay computed from the
	// timestamps was negative and has been clamped to 0.
	DelayClamped bool
}

// ClockOffset halves the two one-way differences separately so that
// offsets up to the era span do not overflow.
func ClockOffset(t1, t2, t3, t4 ntptime.Timestamp) ntptime.Duration {
	return ntptime.Midpoint(t2.Sub(t1), t3.Sub(t4))
}

func RoundTripDelay(t1, t2, t3, t4 ntptime.Timestamp) ntptime.Duration {
	return t4.Sub(t1) - t3.Sub(t2)
}

func FromExchange(x Exchange, r Remote, localPrecision ntptime.Duration) Measurement {
	m := Measurement{
		Offset:         ClockOffset(x.T1, x.T2, x.T3, x.T4),
		Delay:          RoundTripDelay(x.T1, x.T2, x.T3, x.T4),
		LocalTime:      x.LocalTime,
		Stratum:        r.Stratum,
		Leap:           r.Leap,
		ReferenceID:    r.ReferenceID,
		RootDelay:      r.RootDelay,
		RootDispersion: r.RootDispersion,
	}
	if m.Delay < 0 {
		m.Delay = 0
		m.DelayClamped = true
	}
	m.Dispersion = localPrecision + ntptime.Precision(r.Precision) +
		ntptime.Phi.DispersionOf(m.Delay)
	return m
}

// RootDistance returns the bound on the synchronization error of m relative
// to the root of the synchronization subnet.
func (m Measurement) RootDistance() ntptime.Duration {
	return RootDistance(m.Delay, m.Dispersion, m.RootDelay, m.RootDispersion)
}

func RootDistance(delay, dispersion, rootDelay, rootDispersion ntptime.Duration) ntptime.Duration {
	return delay/2 + dispersion + rootDelay/2 + rootDispersion
}
