package tracegen

import (
	"math/rand"
	"testing"

	"tracespectra/internal/burst"
	"tracespectra/internal/core/model"
)

// flowFixture is an ordered (key, arrival times) pair. Tests build
// analyzers from a slice of these rather than a map so flow processing
// order is pinned across runs instead of left to map iteration order.
type flowFixture struct {
	key   model.FlowKey
	times []float64
}

func buildAnalyzer(flows []flowFixture) *burst.TimeAnalyzer {
	a := burst.NewTimeAnalyzer(0.01)
	for _, f := range flows {
		for _, t := range f.times {
			a.Add(f.key, model.Packet{Time: t, Len: 64})
		}
	}
	return a
}

func defaultParams() (TimeParameters, AddrParameters) {
	return TimeParameters{AOn: 1.4, MOn: 0.002, AOff: 1.2, MOff: 0.01, TotalDuration: 5.0},
		AddrParameters{SrcSigma: 0.3, DstSigma: 0.35}
}

func TestTraceGeneratorPacketBudgetPerFlow(t *testing.T) {
	flows := []flowFixture{
		{key: model.FlowKey{SAddr: 0x0A000001, DAddr: 0x0A000002}, times: []float64{0.0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}},
		{key: model.FlowKey{SAddr: 0x0A000003, DAddr: 0x0A000004}, times: []float64{1.0, 1.01, 1.02}},
	}
	a := buildAnalyzer(flows)
	tp, ap := defaultParams()
	rng := rand.New(rand.NewSource(1))
	tg := New(a, tp, ap, 0, rng)

	got := make(map[model.FlowKey]int)
	for {
		key, _, ok := tg.NextPacket()
		if !ok {
			break
		}
		got[key]++
	}

	total := 0
	for _, c := range got {
		total += c
	}
	want := 0
	for _, f := range flows {
		want += len(f.times)
	}
	if total != want {
		t.Fatalf("total synthesized packets = %d, want %d", total, want)
	}

	for _, f := range flows {
		srcImg, _ := tg.srcMap.Get(f.key.SAddr)
		dstImg, _ := tg.dstMap.Get(f.key.DAddr)
		synthKey := model.FlowKey{SAddr: srcImg, DAddr: dstImg}
		if got[synthKey] != len(f.times) {
			t.Fatalf("flow %+v: synthesized packets = %d, want %d", f.key, got[synthKey], len(f.times))
		}
	}
}

func TestTraceGeneratorNonDecreasingTimestamps(t *testing.T) {
	flows := []flowFixture{
		{key: model.FlowKey{SAddr: 1, DAddr: 2}, times: []float64{2.0, 2.01, 2.02, 2.03}},
		{key: model.FlowKey{SAddr: 3, DAddr: 4}, times: []float64{0.0, 0.01, 0.02}},
	}
	a := buildAnalyzer(flows)
	tp, ap := defaultParams()
	rng := rand.New(rand.NewSource(2))
	tg := New(a, tp, ap, 0, rng)

	last := -1.0
	for {
		_, pkt, ok := tg.NextPacket()
		if !ok {
			break
		}
		if pkt.Time < last {
			t.Fatalf("timestamp went backwards: %v after %v", pkt.Time, last)
		}
		last = pkt.Time
	}
}

// TestTraceGeneratorDeterministicGivenSeed exercises the guarantee that a
// fixed seed and a fixed flow processing order reproduce the same packet
// stream. New drives a single shared, stateful BurstGenerator with one
// Next call per flow, so the fixture here must present flows in the same
// order on every call to buildAnalyzer.
func TestTraceGeneratorDeterministicGivenSeed(t *testing.T) {
	flows := []flowFixture{
		{key: model.FlowKey{SAddr: 1, DAddr: 2}, times: []float64{0.0, 0.05, 0.1, 0.15, 0.4}},
		{key: model.FlowKey{SAddr: 3, DAddr: 4}, times: []float64{0.2, 0.21, 0.22}},
	}

	run := func(seed int64) []model.Packet {
		a := buildAnalyzer(flows)
		tp, ap := defaultParams()
		tg := New(a, tp, ap, 0, rand.New(rand.NewSource(seed)))
		var out []model.Packet
		for {
			_, pkt, ok := tg.NextPacket()
			if !ok {
				break
			}
			out = append(out, pkt)
		}
		return out
	}

	a1 := run(99)
	a2 := run(99)
	if len(a1) != len(a2) {
		t.Fatalf("run lengths differ: %d vs %d", len(a1), len(a2))
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatalf("packet %d differs between runs: %+v vs %+v", i, a1[i], a2[i])
		}
	}
}

func TestTraceGeneratorAddressesFromSyntheticImage(t *testing.T) {
	flows := []flowFixture{
		{key: model.FlowKey{SAddr: 0x0A000001, DAddr: 0x0B000001}, times: []float64{0.0, 0.01, 0.02}},
		{key: model.FlowKey{SAddr: 0x0A000002, DAddr: 0x0B000002}, times: []float64{1.0, 1.01}},
	}
	a := buildAnalyzer(flows)
	tp, ap := defaultParams()
	tg := New(a, tp, ap, 0, rand.New(rand.NewSource(3)))

	srcImages := tg.srcMap.Images()

	for {
		key, _, ok := tg.NextPacket()
		if !ok {
			break
		}
		if !srcImages[key.SAddr] {
			t.Fatalf("emitted saddr %#x is not a known synthetic image", key.SAddr)
		}
	}
}

// TestTraceGeneratorPacketBudgetOverride checks that a positive numPackets
// budget rescales the total emitted packet count to exactly that budget,
// rather than the sum of each flow's observed count.
func TestTraceGeneratorPacketBudgetOverride(t *testing.T) {
	flows := []flowFixture{
		{key: model.FlowKey{SAddr: 1, DAddr: 2}, times: []float64{0.0, 0.1, 0.2, 0.3}},
		{key: model.FlowKey{SAddr: 3, DAddr: 4}, times: []float64{1.0, 1.01}},
	}
	a := buildAnalyzer(flows)
	tp, ap := defaultParams()
	rng := rand.New(rand.NewSource(4))
	tg := New(a, tp, ap, 30, rng)

	total := 0
	for {
		_, _, ok := tg.NextPacket()
		if !ok {
			break
		}
		total++
	}
	if total != 30 {
		t.Fatalf("total synthesized packets = %d, want 30", total)
	}
}
