package sync

import (
	"errors"
	"time"

	"example.com/timesync/base/ntptime"
)

const (
	DefaultStepThreshold      = 100 * time.Millisecond
	DefaultFrequencyTolerance = ntptime.FrequencyTolerance(500)
	DefaultMinClusterSize     = 1
	DefaultLowJitter          = 1 * time.Millisecond
	DefaultHighJitter         = 50 * time.Millisecond

	PIControllerMinPRatio     = 0.01
	PIControllerDefaultPRatio = 0.2
	PIControllerMaxPRatio     = 1.0
	PIControllerMinIRatio     = 0.005
	PIControllerDefaultIRatio = 0.05
	PIControllerMaxIRatio     = 0.5
)

// TieBreak selects among equally large clusters of agreeing peers.
type TieBreak uint8

const (
	// TieBreakTotalDistance prefers the cluster with the smallest sum of
	// root distances.
	TieBreakTotalDistance TieBreak = iota
	// TieBreakMinDistance prefers the cluster containing the peer with the
	// smallest root distance.
	TieBreakMinDistance
)

func (t TieBreak) String() string {
	switch t {
	case TieBreakTotalDistance:
		return "total_distance"
	case TieBreakMinDistance:
		return "min_distance"
	default:
		return "unknown"
	}
}

func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "total_distance":
		return TieBreakTotalDistance, nil
	case "min_distance":
		return TieBreakMinDistance, nil
	default:
		return 0, errors.New("unknown tie-break policy: " + s)
	}
}

type SystemConfig struct {
	// Offsets strictly above StepThreshold are corrected by stepping the
	// clock.
	StepThreshold ntptime.Duration
	// FrequencyTolerance bounds the frequency correction.
	FrequencyTolerance ntptime.FrequencyTolerance
	// Measurements older than StalenessWindow are not used.
	StalenessWindow time.Duration
	MinClusterSize  int
	TieBreak        TieBreak
	PollLimits      ntptime.PollIntervalLimits
	LowJitter       ntptime.Duration
	HighJitter      ntptime.Duration
	KP              float64
	KI              float64
	// InitialFrequency is the frequency correction in ppm in effect when the
	// controller starts, e.g. from a drift file.
	InitialFrequency float64
}

func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		StepThreshold:      ntptime.DurationFromStd(DefaultStepThreshold),
		FrequencyTolerance: DefaultFrequencyTolerance,
		StalenessWindow:    3 * ntptime.DefaultPollIntervalLimits.Max.Duration(),
		MinClusterSize:     DefaultMinClusterSize,
		TieBreak:           TieBreakTotalDistance,
		PollLimits:         ntptime.DefaultPollIntervalLimits,
		LowJitter:          ntptime.DurationFromStd(DefaultLowJitter),
		HighJitter:         ntptime.DurationFromStd(DefaultHighJitter),
		KP:                 PIControllerDefaultPRatio,
		KI:                 PIControllerDefaultIRatio,
	}
}

var errInvalidConfig = errors.New("invalid system configuration")

func (c SystemConfig) Validate() error {
	switch {
	case c.StepThreshold <= 0:
		return errInvalidConfig
	case c.FrequencyTolerance <= 0:
		return errInvalidConfig
	case c.StalenessWindow <= 0:
		return errInvalidConfig
	case c.MinClusterSize < 1:
		return errInvalidConfig
	case !c.PollLimits.Valid():
		return errInvalidConfig
	case c.LowJitter < 0 || c.HighJitter < c.LowJitter:
		return errInvalidConfig
	case c.KP < PIControllerMinPRatio || c.KP > PIControllerMaxPRatio:
		return errInvalidConfig
	case c.KI < PIControllerMinIRatio || c.KI > PIControllerMaxIRatio:
		return errInvalidConfig
	case c.InitialFrequency < -c.FrequencyTolerance.PPM() ||
		c.InitialFrequency > c.FrequencyTolerance.PPM():
		return errInvalidConfig
	}
	return nil
}
