package peer

import (
	"example.com/timesync/base/ntptime"
)

// Snapshot is the externally visible state of a peer at a point in time.
// Offset, Delay, Dispersion and Jitter are the clock filter's current
// estimate; the remote metadata is that of the last accepted response.
type Snapshot struct {
	ID       string
	SourceID uint32
	Version  uint64

	State       State
	LastOutcome State
	Reach       Reach
	Poll        ntptime.PollInterval
	Unusable    bool
	RateLimited bool

	HasMeasurement bool
	Offset         ntptime.Duration
	Delay          ntptime.Duration
	Dispersion     ntptime.Duration
	Jitter         ntptime.Duration
	LocalTime      ntptime.Instant

	Stratum        uint8
	Leap           uint8
	ReferenceID    uint32
	RootDelay      ntptime.Duration
	RootDispersion ntptime.Duration
	RootDistance   ntptime.Duration

	LastRejection error
	LastIgnore    error
}

func (s Snapshot) Reachable() bool {
	return !s.Unusable && s.Reach.Reachable()
}

// Rejected reports whether the peer's most recent exchange ended with a
// rejected response.
func (s Snapshot) Rejected() bool {
	return s.LastOutcome == Rejected
}
