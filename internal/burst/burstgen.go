package burst

import (
	"math"
	"math/rand"

	"tracespectra/internal/fiterrs"
)

// BurstTimes is one scheduled on-period within a generated window, with
// the share of the window's packet budget assigned to it.
type BurstTimes struct {
	StartTime float64
	EndTime   float64
	Pkts      int
}

// BurstGenerator produces an unbounded sequence of per-window burst
// schedules consistent with a single, continuous Pareto on/off renewal
// process: the phase left over at the end of one window (mid on-period or
// mid off-period) carries into the next call to Next.
type BurstGenerator struct {
	aOn, mOn      float64
	aOff, mOff    float64
	totalDuration float64
	rng           *rand.Rand

	firstTime   bool
	startOn     bool
	startOffset float64
}

// NewBurstGenerator validates the Pareto and window parameters and
// returns a generator with a fresh renewal process. Invalid parameters
// are a programmer error and panic.
func NewBurstGenerator(aOn, mOn, aOff, mOff, totalDuration float64, rng *rand.Rand) *BurstGenerator {
	if mOn <= 0 {
		fiterrs.BadParameters("m_on must be positive, got %v", mOn)
	}
	if mOff <= 0 {
		fiterrs.BadParameters("m_off must be positive, got %v", mOff)
	}
	if aOn <= 0 {
		fiterrs.BadParameters("a_on must be positive, got %v", aOn)
	}
	if aOff <= 0 {
		fiterrs.BadParameters("a_off must be positive, got %v", aOff)
	}
	if mOff >= totalDuration {
		fiterrs.BadParameters("m_off (%v) must be less than total_duration (%v)", mOff, totalDuration)
	}
	return &BurstGenerator{
		aOn: aOn, mOn: mOn, aOff: aOff, mOff: mOff,
		totalDuration: totalDuration,
		rng:           rng,
		firstTime:     true,
	}
}

// pareto draws m*exp(E/a) where E is a unit-rate exponential variate.
func (g *BurstGenerator) pareto(a, m float64) float64 {
	return m * math.Exp(g.rng.ExpFloat64()/a)
}

// Next returns the burst schedule covering exactly the next
// total_duration-long window, relative to that window's own start, with
// total packets exactly numPkts distributed across the window's bursts by
// weighted random sampling on burst duration.
func (g *BurstGenerator) Next(numPkts int) []BurstTimes {
	if g.firstTime {
		off := g.pareto(g.aOff, g.mOff)
		g.startOffset = math.Mod(off, g.totalDuration)
		g.startOn = false
		g.firstTime = false
	}

	var cur float64
	if g.startOn {
		cur = 0.0
	} else {
		cur = g.startOffset
	}
	resuming := g.startOn

	var bursts []BurstTimes
	for {
		var on float64
		if resuming {
			on = g.startOffset
			resuming = false
		} else {
			on = g.pareto(g.aOn, g.mOn)
		}
		off := g.pareto(g.aOff, g.mOff)

		start := cur
		end := cur + on
		if end > g.totalDuration {
			bursts = append(bursts, BurstTimes{StartTime: start, EndTime: g.totalDuration})
			g.startOn = true
			g.startOffset = math.Mod(end, g.totalDuration)
			break
		}

		bursts = append(bursts, BurstTimes{StartTime: start, EndTime: end})
		cur = end + off
		if cur >= g.totalDuration {
			g.startOn = false
			g.startOffset = math.Mod(cur, g.totalDuration)
			break
		}
	}

	g.distributePackets(bursts, numPkts)

	out := bursts[:0]
	for _, b := range bursts {
		if b.Pkts > 0 {
			out = append(out, b)
		}
	}
	return out
}

// distributePackets hands out numPkts one at a time, each draw choosing a
// burst with probability proportional to its duration.
func (g *BurstGenerator) distributePackets(bursts []BurstTimes, numPkts int) {
	if len(bursts) == 0 {
		if numPkts > 0 {
			fiterrs.InvariantViolation("burst generator produced no bursts for a window with %d packets to place", numPkts)
		}
		return
	}

	weights := make([]float64, len(bursts))
	total := 0.0
	for i, b := range bursts {
		weights[i] = b.EndTime - b.StartTime
		total += weights[i]
	}

	for n := 0; n < numPkts; n++ {
		r := g.rng.Float64() * total
		acc := 0.0
		idx := len(bursts) - 1
		for i, w := range weights {
			acc += w
			if r < acc {
				idx = i
				break
			}
		}
		bursts[idx].Pkts++
	}
}
