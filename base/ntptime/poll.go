package ntptime

import (
	"time"
)

// PollInterval is the base 2 logarithm of the poll interval in seconds.
type PollInterval int8

const (
	MinPollInterval PollInterval = 0
	MaxPollInterval PollInterval = 17
)

type PollIntervalLimits struct {
	Min PollInterval
	Max PollInterval
}

var DefaultPollIntervalLimits = PollIntervalLimits{Min: 4, Max: 10}

func (l PollIntervalLimits) Valid() bool {
	return MinPollInterval <= l.Min && l.Min <= l.Max && l.Max <= MaxPollInterval
}

func (p PollInterval) Duration() time.Duration {
	if p < 0 {
		return time.Second >> uint(-p)
	}
	return time.Second << uint(p)
}

func (p PollInterval) Clamp(l PollIntervalLimits) PollInterval {
	return min(max(p, l.Min), l.Max)
}

func (p PollInterval) Inc(l PollIntervalLimits) PollInterval {
	return (p + 1).Clamp(l)
}

func (p PollInterval) Dec(l PollIntervalLimits) PollInterval {
	return (p - 1).Clamp(l)
}
