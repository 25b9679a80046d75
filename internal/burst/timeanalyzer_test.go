package burst

import (
	"math"
	"testing"

	"tracespectra/internal/core/model"
)

func pkt(t float64) model.Packet { return model.Packet{Time: t} }

func TestTimeAnalyzerSinglePacketFlow(t *testing.T) {
	a := NewTimeAnalyzer(0.01)
	key := model.FlowKey{SAddr: 0x01010101, DAddr: 0x02020202}
	a.Add(key, pkt(100.0))

	bursts := a.Bursts(key)
	if len(bursts) != 1 {
		t.Fatalf("got %d bursts, want 1", len(bursts))
	}
	if bursts[0].StartTime != 100.0 || bursts[0].EndTime != 100.0 {
		t.Fatalf("burst = %+v, want start=end=100.0", bursts[0])
	}

	on := a.OnDurations()
	if len(on) != 1 || on[0] != 0.0 {
		t.Fatalf("OnDurations() = %v, want [0.0]", on)
	}
	if off := a.OffDurations(); len(off) != 0 {
		t.Fatalf("OffDurations() = %v, want []", off)
	}

	alphaOn, _ := a.ParetoFit()
	if !math.IsInf(alphaOn, 0) && !math.IsNaN(alphaOn) {
		t.Fatalf("ParetoFit alphaOn = %v, want Inf or NaN for a zero-duration-only sample", alphaOn)
	}
}

func TestTimeAnalyzerTwoBurstFlow(t *testing.T) {
	a := NewTimeAnalyzer(0.01)
	key := model.FlowKey{SAddr: 1, DAddr: 2}
	for _, ts := range []float64{0.000, 0.005, 0.020, 0.025} {
		a.Add(key, pkt(ts))
	}

	bursts := a.Bursts(key)
	if len(bursts) != 2 {
		t.Fatalf("got %d bursts, want 2", len(bursts))
	}
	if bursts[0].StartTime != 0.000 || bursts[0].EndTime != 0.005 || len(bursts[0].Packets) != 2 {
		t.Fatalf("burst[0] = %+v", bursts[0])
	}
	if bursts[1].StartTime != 0.020 || bursts[1].EndTime != 0.025 || len(bursts[1].Packets) != 2 {
		t.Fatalf("burst[1] = %+v", bursts[1])
	}

	on := a.OnDurations()
	if len(on) != 2 || math.Abs(on[0]-0.005) > 1e-12 || math.Abs(on[1]-0.005) > 1e-12 {
		t.Fatalf("OnDurations() = %v, want [0.005, 0.005]", on)
	}
	off := a.OffDurations()
	if len(off) != 1 || math.Abs(off[0]-0.015) > 1e-12 {
		t.Fatalf("OffDurations() = %v, want [0.015]", off)
	}
}

func TestTimeAnalyzerBurstInvariants(t *testing.T) {
	a := NewTimeAnalyzer(0.01)
	key := model.FlowKey{SAddr: 1, DAddr: 2}
	for _, ts := range []float64{0, 0.001, 0.02, 0.021, 0.022, 0.05} {
		a.Add(key, pkt(ts))
	}

	bursts := a.Bursts(key)
	for i, b := range bursts {
		if b.StartTime > b.EndTime {
			t.Fatalf("burst[%d] start > end: %+v", i, b)
		}
		if len(b.Packets) == 0 {
			t.Fatalf("burst[%d] has no packets", i)
		}
		if b.Packets[0].Time != b.StartTime || b.Packets[len(b.Packets)-1].Time != b.EndTime {
			t.Fatalf("burst[%d] endpoints don't match its packet times: %+v", i, b)
		}
		if i > 0 {
			gap := b.StartTime - bursts[i-1].EndTime
			if gap < a.BurstTimeout() {
				t.Fatalf("consecutive bursts %d,%d violate the timeout: gap=%v", i-1, i, gap)
			}
		}
	}
}

func TestParetoMLEKnownShape(t *testing.T) {
	// Samples with a known, hand-computed mean log-ratio.
	m := 1.0
	samples := []float64{math.E, math.E * math.E, math.E * math.E * math.E}
	// mean(ln(x/m)) = (1+2+3)/3 = 2 -> alpha = 0.5
	got := paretoMLE(samples, m)
	if diff := got - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("paretoMLE() = %v, want 0.5", got)
	}
}
