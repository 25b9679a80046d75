package cascade

import (
	"math"
	"testing"
)

func TestPrefixTreeBalance(t *testing.T) {
	tr := NewPrefixTree()
	if err := tr.Add(0x00000000, 1.0); err != nil {
		t.Fatal(err)
	}
	if err := tr.Add(0x80000000, 1.0); err != nil {
		t.Fatal(err)
	}
	tr.Prefixify()

	if w, _ := tr.weightAt(0, 0); w != 2.0 {
		t.Fatalf("w(/0) = %v, want 2.0", w)
	}
	if w, _ := tr.weightAt(1, 0x00000000); w != 1.0 {
		t.Fatalf("w(0.0.0.0/1) = %v, want 1.0", w)
	}
	if w, _ := tr.weightAt(1, 0x80000000); w != 1.0 {
		t.Fatalf("w(128.0.0.0/1) = %v, want 1.0", w)
	}
}

func TestPrefixTreeDuplicateAddIgnored(t *testing.T) {
	tr := NewPrefixTree()
	tr.Add(0x01020304, 1.0)
	tr.Add(0x01020304, 1.0)
	if tr.N() != 1 {
		t.Fatalf("N() = %d, want 1 after duplicate Add", tr.N())
	}
}

func TestPrefixTreeAddAfterPrefixifyFails(t *testing.T) {
	tr := NewPrefixTree()
	tr.Add(1, 1.0)
	tr.Prefixify()
	if err := tr.Add(2, 1.0); err == nil {
		t.Fatal("Add after Prefixify should fail")
	}
	if err := tr.Incr(2); err == nil {
		t.Fatal("Incr after Prefixify should fail")
	}
}

func TestPrefixTreePrefixifyIdempotent(t *testing.T) {
	tr := NewPrefixTree()
	tr.Add(0x00000000, 1.0)
	tr.Add(0x80000000, 1.0)
	tr.Prefixify()
	before, _ := tr.weightAt(0, 0)
	tr.Prefixify() // second call must be a no-op
	after, _ := tr.weightAt(0, 0)
	if before != after {
		t.Fatalf("second Prefixify changed root weight: %v -> %v", before, after)
	}
}

func TestPrefixTreeBoundaryClamp(t *testing.T) {
	tr := NewPrefixTree()
	// A /24 block with all four children on the left half: the right
	// half of the /24's single split is empty, forcing a left share of
	// w=1 at that node, which the fit clamps to 1-1/(2*4).
	base := uint32(10) << 24
	for i := uint32(0); i < 4; i++ {
		tr.Add(base|i, 1.0)
	}
	tr.Prefixify()

	w, ok := tr.weightAt(24, base)
	if !ok || w != 4.0 {
		t.Fatalf("weight(/24) = %v, %v, want 4.0, true", w, ok)
	}

	left, _ := tr.weightAt(25, base)
	right, _ := tr.weightAt(25, base|childBit(24))
	if left != 4.0 || right != 0.0 {
		t.Fatalf("left=%v right=%v, want 4.0, 0.0", left, right)
	}

	// Lengths 8..29 each hold one weight-4 node with left share 1, clamped
	// to 0.875 (x = ln 7); the one /30 and two /31 nodes split evenly (x = 0).
	x := math.Log(0.875 / 0.125)
	mean := 22 * x / 25
	want := math.Sqrt((22*(x-mean)*(x-mean) + 3*mean*mean) / 24)
	if got := tr.FitLogitNormal(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("FitLogitNormal() = %v, want %v", got, want)
	}
}

func TestPrefixTreeSingularitySingleBranch(t *testing.T) {
	tr := NewPrefixTree()
	// A single address: every ancestor above it has weight 1, so the
	// fitter never accumulates a second point and Fit() is the
	// documented degenerate NaN.
	tr.Add(0x0A000001, 1.0)
	tr.Prefixify()
	got := tr.Singularity(0x0A000001)
	if !math.IsNaN(got) {
		t.Fatalf("Singularity() = %v, want NaN for a lone address", got)
	}
}
