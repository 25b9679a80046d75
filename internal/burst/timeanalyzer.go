// Package burst groups packets into per-flow bursts, fits Pareto on/off
// shape parameters to an observed trace, and generates a Pareto renewal
// process with a fixed packet budget.
package burst

import (
	"math"

	"tracespectra/internal/core/model"
)

// DefaultBurstTimeout is the inactivity gap, in seconds, above which a
// flow's packets are split into separate bursts.
const DefaultBurstTimeout = 0.01

// TimeAnalyzer groups packets into per-flow burst lists using an
// inactivity timeout, and fits Pareto on/off shape parameters to the
// resulting duration samples.
//
// Packets are assumed to arrive in non-decreasing time order per key;
// this is not guarded.
type TimeAnalyzer struct {
	burstTimeout float64
	flows        map[model.FlowKey][]model.Burst
	order        []model.FlowKey
}

// NewTimeAnalyzer returns an analyzer with the given inactivity timeout.
// A timeout of 0 selects DefaultBurstTimeout.
func NewTimeAnalyzer(burstTimeout float64) *TimeAnalyzer {
	if burstTimeout == 0 {
		burstTimeout = DefaultBurstTimeout
	}
	return &TimeAnalyzer{
		burstTimeout: burstTimeout,
		flows:        make(map[model.FlowKey][]model.Burst),
	}
}

// BurstTimeout returns the configured inactivity timeout.
func (a *TimeAnalyzer) BurstTimeout() float64 {
	return a.burstTimeout
}

// Add appends pkt to the flow identified by key, opening a new burst
// whenever the gap since the flow's last packet is at least the burst
// timeout.
func (a *TimeAnalyzer) Add(key model.FlowKey, pkt model.Packet) {
	bursts, exists := a.flows[key]
	if !exists {
		a.flows[key] = []model.Burst{{StartTime: pkt.Time, EndTime: pkt.Time, Packets: []model.Packet{pkt}}}
		a.order = append(a.order, key)
		return
	}

	last := &bursts[len(bursts)-1]
	if pkt.Time-last.EndTime >= a.burstTimeout {
		bursts = append(bursts, model.Burst{StartTime: pkt.Time, EndTime: pkt.Time, Packets: []model.Packet{pkt}})
	} else {
		last.Packets = append(last.Packets, pkt)
		last.EndTime = pkt.Time
	}
	a.flows[key] = bursts
}

// Flows returns the flow keys in insertion order.
func (a *TimeAnalyzer) Flows() []model.FlowKey {
	return a.order
}

// Bursts returns the burst list for a flow, ordered by start time.
func (a *TimeAnalyzer) Bursts(key model.FlowKey) []model.Burst {
	return a.flows[key]
}

// PacketCount returns the total number of packets observed for a flow.
func (a *TimeAnalyzer) PacketCount(key model.FlowKey) int {
	count := 0
	for _, b := range a.flows[key] {
		count += len(b.Packets)
	}
	return count
}

// OnDurations returns, across every flow, the end_time-start_time of each
// burst.
func (a *TimeAnalyzer) OnDurations() []float64 {
	var out []float64
	for _, key := range a.order {
		for _, b := range a.flows[key] {
			out = append(out, b.EndTime-b.StartTime)
		}
	}
	return out
}

// OffDurations returns, across every flow, the gap between consecutive
// bursts.
func (a *TimeAnalyzer) OffDurations() []float64 {
	var out []float64
	for _, key := range a.order {
		bursts := a.flows[key]
		for i := 1; i < len(bursts); i++ {
			out = append(out, bursts[i].StartTime-bursts[i-1].EndTime)
		}
	}
	return out
}

// paretoMLE computes the maximum-likelihood Pareto shape for samples with
// x >= m, using m as the position parameter, via Welford's running mean of
// ln(x/m).
func paretoMLE(samples []float64, m float64) float64 {
	count := 0
	mean := 0.0
	for _, x := range samples {
		if x < m {
			continue
		}
		count++
		lx := math.Log(x / m)
		mean += (lx - mean) / float64(count)
	}
	return 1 / mean
}

// ParetoFit returns the MLE Pareto shape parameters (alphaOn, alphaOff)
// for the on- and off-duration samples, using the burst timeout as the
// Pareto minimum for both.
func (a *TimeAnalyzer) ParetoFit() (alphaOn, alphaOff float64) {
	alphaOn = paretoMLE(a.OnDurations(), a.burstTimeout)
	alphaOff = paretoMLE(a.OffDurations(), a.burstTimeout)
	return alphaOn, alphaOff
}
