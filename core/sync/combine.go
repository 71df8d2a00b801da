package sync

import (
	"math"

	"example.com/timesync/base/floats"
	"example.com/timesync/base/ntptime"
	"example.com/timesync/core/peer"
	"example.com/timesync/net/ntp"
)

const minWeightDistance = 1e-6

type combination struct {
	offset ntptime.Duration
	jitter ntptime.Duration
	best   int
	leap   uint8
}

// combine computes the average offset of the survivors weighted by the
// inverse of their root distances.
func combine(cs []candidate, survivors []int, peers []peer.Snapshot) combination {
	best := survivors[0]
	for _, j := range survivors[1:] {
		if cs[j].dist < cs[best].dist {
			best = j
		}
	}
	// offsets relative to the best survivor
	offs := make([]float64, len(survivors))
	ws := make([]float64, len(survivors))
	for i, j := range survivors {
		offs[i] = (cs[j].off - cs[best].off).Seconds()
		ws[i] = 1.0 / max(cs[j].dist.Seconds(), minWeightDistance)
	}
	off := floats.WeightedMean(offs, ws)
	sel := floats.RMSDeviation(offs, off)
	pj := peers[cs[best].idx].Jitter.Seconds()
	return combination{
		offset: cs[best].off + ntptime.DurationFromSeconds(off),
		jitter: ntptime.DurationFromSeconds(math.Sqrt(sel*sel + pj*pj)),
		best:   best,
		leap:   leap(cs, survivors, peers),
	}
}

// leap returns the leap indicator reported by a majority of the survivors.
func leap(cs []candidate, survivors []int, peers []peer.Snapshot) uint8 {
	var n [4]int
	for _, j := range survivors {
		n[peers[cs[j].idx].Leap&0b11]++
	}
	for l, k := range n {
		if 2*k > len(survivors) {
			return uint8(l)
		}
	}
	return ntp.LeapIndicatorNoWarning
}
