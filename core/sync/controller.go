package sync

import (
	"slices"
	"time"

	"go.uber.org/zap"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/core/peer"
	"example.com/timesync/net/ntp"
)

// DefaultController selects the majority cluster of agreeing peers, combines
// their offsets and steers the clock frequency with a PI controller.
type DefaultController struct {
	log *zap.Logger
	cfg SystemConfig

	system    SystemSnapshot
	freq      float64
	freqAdded float64
	members   []string
	// used holds the measurement times of the survivors of the last update.
	used map[string]ntptime.Instant
}

var _ Controller = (*DefaultController)(nil)

func NewDefaultController(log *zap.Logger, cfg SystemConfig) (*DefaultController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DefaultController{
		log: log,
		cfg: cfg,
		system: SystemSnapshot{
			Stratum: ntp.StratumUnsync,
			Poll:    cfg.PollLimits.Min,
			Time: TimeSnapshot{
				Frequency: cfg.InitialFrequency,
				Leap:      ntp.LeapIndicatorUnknown,
			},
		},
		freq: cfg.InitialFrequency,
	}, nil
}

func (c *DefaultController) SystemSnapshot() SystemSnapshot {
	return c.system
}

func (c *DefaultController) Evaluate(now ntptime.Instant, peers []peer.Snapshot) Evaluation {
	ds := make([]PeerDecision, len(peers))
	var cs []candidate
	for i, s := range peers {
		d := PeerDecision{ID: s.ID, Verdict: Unusable, Poll: c.system.Poll}
		dist, reason := c.distance(now, s)
		if reason != "" {
			d.Reason = reason
		} else {
			d.Distance = dist
			cs = append(cs, candidate{idx: i, id: s.ID, off: s.Offset, dist: dist})
		}
		ds[i] = d
	}
	if len(cs) == 0 {
		c.log.Debug("no usable peers", zap.Int("peers", len(peers)))
		return Evaluation{Status: Degraded, Peers: ds}
	}

	size, sets := clusters(cs)
	if 2*size <= len(cs) || size < c.cfg.MinClusterSize {
		for _, x := range cs {
			ds[x.idx].Verdict = Falseticker
			ds[x.idx].Reason = "no majority agreement"
		}
		c.log.Debug("no majority cluster",
			zap.Int("candidates", len(cs)), zap.Int("largest", size))
		return Evaluation{Status: Degraded, Peers: ds}
	}
	survivors := c.pick(cs, sets)
	in := make([]bool, len(cs))
	for _, j := range survivors {
		in[j] = true
	}
	for j, x := range cs {
		if in[j] {
			ds[x.idx].Verdict = Survivor
		} else {
			ds[x.idx].Verdict = Falseticker
			ds[x.idx].Reason = "outside majority cluster"
		}
	}

	if !c.fresh(cs, survivors, peers) {
		for i := range ds {
			ds[i].Poll = c.system.Poll
		}
		c.log.Debug("no new measurements from survivors",
			zap.Int("survivors", len(survivors)))
		return Evaluation{Status: Synchronized, Peers: ds}
	}
	c.used = make(map[string]ntptime.Instant, len(survivors))
	for _, j := range survivors {
		c.used[cs[j].id] = peers[cs[j].idx].LocalTime
	}

	comb := combine(cs, survivors, peers)
	best := peers[cs[comb.best].idx]

	u := StateUpdate{Offset: comb.offset}
	if comb.offset.Abs() > c.cfg.StepThreshold {
		u.Action = Step
		c.freq, c.freqAdded = 0, 0
	} else {
		u.Action = Slew
		c.slew(comb.offset, c.updateInterval(now))
	}
	u.FrequencyPPM = c.freq

	members := sortedIDs(cs, survivors)
	poll := c.system.Poll
	switch {
	case comb.jitter > c.cfg.HighJitter || rateLimited(cs, survivors, peers):
		poll = poll.Inc(c.cfg.PollLimits)
	case comb.jitter <= c.cfg.LowJitter && slices.Equal(members, c.members):
		poll = poll.Dec(c.cfg.PollLimits)
	}
	c.members = members
	for i := range ds {
		ds[i].Poll = poll
	}

	stratum := best.Stratum + 1
	if stratum > ntp.StratumMax {
		stratum = ntp.StratumUnsync
	}
	age := ntptime.Phi.Dispersion(now.Since(best.LocalTime))
	u.System = SystemSnapshot{
		Version:     c.system.Version + 1,
		Stratum:     stratum,
		ReferenceID: best.SourceID,
		Poll:        poll,
		Time: TimeSnapshot{
			Offset:    comb.offset,
			Frequency: c.freq,
			RootDelay: best.RootDelay + best.Delay,
			RootDispersion: best.RootDispersion + best.Dispersion + age +
				comb.jitter + comb.offset.Abs(),
			Jitter: comb.jitter,
			Leap:   comb.leap,
		},
		UpdatedAt: now,
	}
	c.system = u.System

	c.log.Debug("evaluated peers",
		zap.Stringer("action", u.Action),
		zap.Stringer("offset", u.Offset),
		zap.Float64("freq", u.FrequencyPPM),
		zap.Strings("survivors", members),
		zap.Int("candidates", len(cs)),
		zap.Stringer("jitter", comb.jitter),
		zap.Int8("poll", int8(poll)))
	return Evaluation{Status: Synchronized, Update: &u, Peers: ds}
}

// fresh reports whether a survivor has measured since the last update.
func (c *DefaultController) fresh(cs []candidate, survivors []int,
	peers []peer.Snapshot) bool {
	for _, j := range survivors {
		t, ok := c.used[cs[j].id]
		if !ok || t != peers[cs[j].idx].LocalTime {
			return true
		}
	}
	return false
}

// updateInterval returns the time since the previous update, bounded by the
// poll limits. Before the first update it is the current poll interval.
func (c *DefaultController) updateInterval(now ntptime.Instant) time.Duration {
	if c.system.UpdatedAt.IsZero() {
		return c.system.Poll.Duration()
	}
	return min(max(now.Since(c.system.UpdatedAt),
		c.cfg.PollLimits.Min.Duration()), c.cfg.PollLimits.Max.Duration())
}

func rateLimited(cs []candidate, survivors []int, peers []peer.Snapshot) bool {
	for _, j := range survivors {
		if peers[cs[j].idx].RateLimited {
			return true
		}
	}
	return false
}
