package sync

import (
	"cmp"
	"slices"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/core/peer"
	"example.com/timesync/net/ntp"
)

type candidate struct {
	idx  int
	id   string
	off  ntptime.Duration
	dist ntptime.Duration
}

// distance returns the root distance of s at now, or a reason why s cannot
// be used.
func (c *DefaultController) distance(now ntptime.Instant, s peer.Snapshot) (
	ntptime.Duration, string) {
	switch {
	case s.Unusable:
		return 0, "unusable"
	case !s.Reachable():
		return 0, "unreachable"
	case s.Rejected():
		if s.LastRejection != nil {
			return 0, "rejected: " + s.LastRejection.Error()
		}
		return 0, "rejected"
	case !s.HasMeasurement:
		return 0, "no measurement"
	case s.LocalTime.Epoch() != now.Epoch():
		return 0, "stale: clock stepped"
	case now.Since(s.LocalTime) > c.cfg.StalenessWindow:
		return 0, "stale"
	case s.Leap == ntp.LeapIndicatorUnknown:
		return 0, "unsynchronized"
	case s.Stratum == ntp.StratumUnspecified || s.Stratum >= ntp.StratumUnsync:
		return 0, "invalid stratum"
	}
	return s.RootDistance + ntptime.Phi.Dispersion(now.Since(s.LocalTime)), ""
}

type endpoint struct {
	v   ntptime.Duration
	typ int
	c   int
}

// clusters finds the largest sets of candidates whose correctness intervals
// [off-dist, off+dist] share a common point. It sweeps over the sorted
// interval endpoints to find the positions where the number of overlapping
// intervals reaches its maximum, then builds the set active at each of them.
func clusters(cs []candidate) (size int, sets [][]int) {
	eps := make([]endpoint, 0, 2*len(cs))
	for i, c := range cs {
		eps = append(eps,
			endpoint{v: c.off - c.dist, typ: +1, c: i},
			endpoint{v: c.off + c.dist, typ: -1, c: i})
	}
	slices.SortFunc(eps, func(a, b endpoint) int {
		if r := cmp.Compare(a.v, b.v); r != 0 {
			return r
		}
		// intervals are closed: starts before ends
		return cmp.Compare(b.typ, a.typ)
	})

	// span[i] holds the sweep positions of the start and end of interval i
	span := make([][2]int, len(cs))
	var peaks []int
	n := 0
	for k, e := range eps {
		if e.typ < 0 {
			span[e.c][1] = k
			n--
			continue
		}
		span[e.c][0] = k
		n++
		if n > size {
			size = n
			peaks = peaks[:0]
		}
		if n == size {
			peaks = append(peaks, k)
		}
	}

	sets = make([][]int, 0, len(peaks))
	for _, k := range peaks {
		set := make([]int, 0, size)
		for i, sp := range span {
			if sp[0] <= k && k < sp[1] {
				set = append(set, i)
			}
		}
		sets = append(sets, set)
	}
	return size, sets
}

func sortedIDs(cs []candidate, set []int) []string {
	ids := make([]string, len(set))
	for i, j := range set {
		ids[i] = cs[j].id
	}
	slices.Sort(ids)
	return ids
}

func (c *DefaultController) better(cs []candidate, a, b []int) bool {
	var da, db ntptime.Duration
	switch c.cfg.TieBreak {
	case TieBreakMinDistance:
		da, db = ntptime.MaxDuration, ntptime.MaxDuration
		for _, i := range a {
			da = min(da, cs[i].dist)
		}
		for _, i := range b {
			db = min(db, cs[i].dist)
		}
	default:
		for _, i := range a {
			da += cs[i].dist
		}
		for _, i := range b {
			db += cs[i].dist
		}
	}
	if da != db {
		return da < db
	}
	return slices.Compare(sortedIDs(cs, a), sortedIDs(cs, b)) < 0
}

func (c *DefaultController) pick(cs []candidate, sets [][]int) []int {
	best := sets[0]
	for _, set := range sets[1:] {
		if c.better(cs, set, best) {
			best = set
		}
	}
	return best
}
