// Package tracegen combines the address-space cascade and the on/off
// burst process into a synthetic packet stream that preserves an observed
// trace's flow structure while remapping addresses and bursts onto
// target cascade and Pareto parameters.
package tracegen

import (
	"container/heap"
	"math/rand"

	"tracespectra/internal/burst"
	"tracespectra/internal/cascade"
	"tracespectra/internal/core/model"
	"tracespectra/internal/fiterrs"
)

// TimeParameters are the Pareto on/off shape, scale, and window
// parameters driving burst generation.
type TimeParameters struct {
	AOn, MOn, AOff, MOff float64
	TotalDuration        float64
}

// AddrParameters are the cascade spread parameters for the source and
// destination address spaces.
type AddrParameters struct {
	SrcSigma, DstSigma float64
}

// scheduledBurst is a synthetic burst queued for emission, carrying the
// flow it belongs to and a cursor into its (already time-spaced) packets.
type scheduledBurst struct {
	key     model.FlowKey
	packets []model.Packet
	cursor  int
}

func (b *scheduledBurst) startTime() float64 { return b.packets[0].Time }
func (b *scheduledBurst) nextTime() float64  { return b.packets[b.cursor].Time }
func (b *scheduledBurst) done() bool         { return b.cursor >= len(b.packets) }

// pendingHeap orders not-yet-started bursts by start time.
type pendingHeap []*scheduledBurst

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i].startTime() < h[j].startTime() }
func (h pendingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x interface{}) { *h = append(*h, x.(*scheduledBurst)) }
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// activeHeap orders currently-active bursts by the timestamp of their
// next unemitted packet.
type activeHeap []*scheduledBurst

func (h activeHeap) Len() int            { return len(h) }
func (h activeHeap) Less(i, j int) bool  { return h[i].nextTime() < h[j].nextTime() }
func (h activeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *activeHeap) Push(x interface{}) { *h = append(*h, x.(*scheduledBurst)) }
func (h *activeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TraceGenerator synthesizes a globally time-ordered packet stream from
// an observed TimeAnalyzer and target time/address parameters. It owns
// both scheduler heaps; the TimeAnalyzer it reads from is borrowed
// read-only.
type TraceGenerator struct {
	srcMap *cascade.AddrMap
	dstMap *cascade.AddrMap

	pending pendingHeap
	active  activeHeap
}

// New builds the source/destination address cascades, the shared burst
// generator, and the full set of scheduled synthetic bursts for every
// flow observed by analyzer. rng is used for every random draw in the
// cascade and burst generation and must not be used concurrently.
//
// numPackets is the total packet budget for the generated trace: 0 reuses
// each flow's observed packet count unchanged, a positive value rescales
// every flow's count proportionally to its observed share of the total so
// the generated trace sums to exactly numPackets.
func New(analyzer *burst.TimeAnalyzer, tp TimeParameters, ap AddrParameters, numPackets int, rng *rand.Rand) *TraceGenerator {
	flows := analyzer.Flows()

	srcObserved := buildObservedCascade(flows, func(k model.FlowKey) uint32 { return k.SAddr })
	dstObserved := buildObservedCascade(flows, func(k model.FlowKey) uint32 { return k.DAddr })

	srcSynth := cascade.NewCascadeGenerator(ap.SrcSigma, rng).Generate(len(srcObserved))
	dstSynth := cascade.NewCascadeGenerator(ap.DstSigma, rng).Generate(len(dstObserved))

	tg := &TraceGenerator{
		srcMap: cascade.NewAddrMap(srcObserved, srcSynth),
		dstMap: cascade.NewAddrMap(dstObserved, dstSynth),
	}

	burstGen := burst.NewBurstGenerator(tp.AOn, tp.MOn, tp.AOff, tp.MOff, tp.TotalDuration, rng)

	counts := flowPacketCounts(analyzer, flows, numPackets)
	for i, key := range flows {
		synthBursts := burstGen.Next(counts[i])
		tg.scheduleFlow(key, analyzer.Bursts(key), synthBursts)
	}

	heap.Init(&tg.pending)
	return tg
}

// flowPacketCounts returns each flow's target packet count, in the same
// order as flows. A non-positive budget reuses the observed counts
// unchanged; a positive budget rescales the observed counts so they sum
// to exactly budget, using the largest-remainder method to distribute the
// rounding error.
func flowPacketCounts(analyzer *burst.TimeAnalyzer, flows []model.FlowKey, budget int) []int {
	observed := make([]int, len(flows))
	total := 0
	for i, key := range flows {
		observed[i] = analyzer.PacketCount(key)
		total += observed[i]
	}

	if budget <= 0 || total == 0 {
		return observed
	}

	out := make([]int, len(flows))
	remainders := make([]float64, len(flows))
	assigned := 0
	for i, c := range observed {
		exact := float64(c) * float64(budget) / float64(total)
		out[i] = int(exact)
		remainders[i] = exact - float64(out[i])
		assigned += out[i]
	}

	remaining := budget - assigned
	for remaining > 0 {
		best := -1
		bestRemainder := -1.0
		for i, r := range remainders {
			if r > bestRemainder {
				bestRemainder = r
				best = i
			}
		}
		if best == -1 {
			break
		}
		out[best]++
		remainders[best] = -1
		remaining--
	}
	return out
}

// buildObservedCascade prefixifies a PrefixTree over the distinct
// addresses selected by proj from the observed flow keys and returns
// each one tagged with its singularity exponent.
func buildObservedCascade(flows []model.FlowKey, proj func(model.FlowKey) uint32) []cascade.Addr {
	tree := cascade.NewPrefixTree()
	seen := make(map[uint32]bool)
	var addrs []uint32
	for _, k := range flows {
		a := proj(k)
		if seen[a] {
			continue
		}
		seen[a] = true
		addrs = append(addrs, a)
		tree.Add(a, 1.0)
	}
	tree.Prefixify()

	out := make([]cascade.Addr, len(addrs))
	for i, a := range addrs {
		out[i] = cascade.Addr{Address: a, Alpha: tree.Singularity(a)}
	}
	return out
}

// scheduleFlow remaps key's addresses and packs synthBursts with packets
// pulled, in order and wrapping, from the flow's observed burst list.
func (tg *TraceGenerator) scheduleFlow(key model.FlowKey, observed []model.Burst, synthBursts []burst.BurstTimes) {
	srcImg, ok := tg.srcMap.Get(key.SAddr)
	if !ok {
		fiterrs.InvariantViolation("no synthetic image for source address %#x", key.SAddr)
	}
	dstImg, ok := tg.dstMap.Get(key.DAddr)
	if !ok {
		fiterrs.InvariantViolation("no synthetic image for destination address %#x", key.DAddr)
	}
	newKey := model.FlowKey{SAddr: srcImg, DAddr: dstImg}

	source := flatPackets(observed)
	if len(source) == 0 {
		fiterrs.InvariantViolation("flow %+v has no observed packets to synthesize from", key)
	}
	cursor := 0

	for _, sb := range synthBursts {
		if sb.Pkts <= 0 {
			continue
		}
		packets := make([]model.Packet, sb.Pkts)
		span := sb.EndTime - sb.StartTime
		for i := 0; i < sb.Pkts; i++ {
			if cursor >= len(source) {
				fiterrs.InvariantViolation("exhausted observed packets for flow %+v while filling a synthetic burst", key)
			}
			p := source[cursor]
			cursor = (cursor + 1) % len(source)
			if sb.Pkts > 1 {
				p.Time = sb.StartTime + float64(i)*span/float64(sb.Pkts)
			} else {
				p.Time = sb.StartTime
			}
			packets[i] = p
		}
		heap.Push(&tg.pending, &scheduledBurst{key: newKey, packets: packets})
	}
}

func flatPackets(bursts []model.Burst) []model.Packet {
	var out []model.Packet
	for _, b := range bursts {
		out = append(out, b.Packets...)
	}
	return out
}

// NextPacket returns the next globally-earliest (FlowKey, Packet) tuple,
// or ok=false when generation is exhausted.
func (tg *TraceGenerator) NextPacket() (model.FlowKey, model.Packet, bool) {
	var chosen *scheduledBurst

	switch {
	case len(tg.pending) == 0 && len(tg.active) == 0:
		return model.FlowKey{}, model.Packet{}, false
	case len(tg.pending) == 0:
		chosen = heap.Pop(&tg.active).(*scheduledBurst)
	case len(tg.active) == 0:
		chosen = heap.Pop(&tg.pending).(*scheduledBurst)
	case tg.pending[0].startTime() <= tg.active[0].nextTime():
		chosen = heap.Pop(&tg.pending).(*scheduledBurst)
	default:
		chosen = heap.Pop(&tg.active).(*scheduledBurst)
	}

	key, pkt := chosen.key, chosen.packets[chosen.cursor]
	chosen.cursor++
	if !chosen.done() {
		heap.Push(&tg.active, chosen)
	}
	return key, pkt, true
}
