package sync

import (
	"example.com/timesync/base/ntptime"
	"example.com/timesync/core/peer"
)

// TimeSnapshot is the host's belief about its clock.
type TimeSnapshot struct {
	Offset         ntptime.Duration
	Frequency      float64
	RootDelay      ntptime.Duration
	RootDispersion ntptime.Duration
	Jitter         ntptime.Duration
	Leap           uint8
}

// SystemSnapshot is published once per evaluation that produced an update.
// Version increases with every published snapshot.
type SystemSnapshot struct {
	Version     uint64
	Stratum     uint8
	ReferenceID uint32
	Poll        ntptime.PollInterval
	Time        TimeSnapshot
	UpdatedAt   ntptime.Instant
}

func (s SystemSnapshot) Synchronized() bool {
	return s.Version != 0
}

type Action uint8

const (
	Slew Action = iota
	Step
)

func (a Action) String() string {
	if a == Step {
		return "step"
	}
	return "slew"
}

// StateUpdate tells the clock how to apply a new estimate. For a step,
// Offset is the amount to step by; for a slew, FrequencyPPM is the new
// frequency correction.
type StateUpdate struct {
	Action       Action
	Offset       ntptime.Duration
	FrequencyPPM float64
	System       SystemSnapshot
}

type Status uint8

const (
	Synchronized Status = iota
	Degraded
)

func (s Status) String() string {
	if s == Degraded {
		return "degraded"
	}
	return "synchronized"
}

type Verdict uint8

const (
	Unusable Verdict = iota
	Falseticker
	Survivor
)

func (v Verdict) String() string {
	switch v {
	case Survivor:
		return "survivor"
	case Falseticker:
		return "falseticker"
	default:
		return "unusable"
	}
}

type PeerDecision struct {
	ID       string
	Verdict  Verdict
	Reason   string
	Distance ntptime.Duration
	Poll     ntptime.PollInterval
}

// Evaluation is the outcome of one controller cycle. Update is nil if no
// correction is to be applied.
type Evaluation struct {
	Status Status
	Update *StateUpdate
	Peers  []PeerDecision
}

// Controller turns peer snapshots into clock corrections.
type Controller interface {
	Evaluate(now ntptime.Instant, peers []peer.Snapshot) Evaluation
	SystemSnapshot() SystemSnapshot
}
