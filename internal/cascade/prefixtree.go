package cascade

import (
	"fmt"
	"math"

	"tracespectra/internal/fiterrs"
)

// level is one of the 33 length-indexed maps a PrefixTree is built from.
type level map[uint32]float64

// PrefixTree accumulates distinct IPv4 addresses and, once prefixified,
// exposes the weighted 33-level prefix tree used to fit a symmetric
// logit-normal spread parameter and to estimate per-address singularity
// exponents.
//
// The tree is mutable (Add/Incr) until Prefixify is called, and read-only
// (Fit/Singularity) afterwards; the prefixified flag enforces the split.
type PrefixTree struct {
	levels      [33]level
	prefixified bool
}

// NewPrefixTree returns an empty, mutable tree.
func NewPrefixTree() *PrefixTree {
	t := &PrefixTree{}
	for i := range t.levels {
		t.levels[i] = make(level)
	}
	return t
}

// maskForLen returns the bitmask that keeps the top `length` bits of a
// /32 address and clears the rest, i.e. the base of the /length prefix
// containing it.
func maskForLen(length int) uint32 {
	if length <= 0 {
		return 0
	}
	if length >= 32 {
		return ^uint32(0)
	}
	return ^uint32(0) << (32 - uint(length))
}

// Add inserts addr at level 32 with weight w, unless addr is already
// present at that level, in which case the call is a silent no-op. It
// fails with fiterrs.ErrAddingToBuiltTree once Prefixify has run.
func (t *PrefixTree) Add(addr uint32, w float64) error {
	if t.prefixified {
		return fmt.Errorf("%w: cannot Add after Prefixify", fiterrs.ErrAddingToBuiltTree)
	}
	if _, exists := t.levels[32][addr]; exists {
		return nil
	}
	t.levels[32][addr] = w
	return nil
}

// Incr adds 1.0 to the weight of addr at level 32, creating the entry if
// absent. It fails with fiterrs.ErrAddingToBuiltTree once Prefixify has run.
func (t *PrefixTree) Incr(addr uint32) error {
	if t.prefixified {
		return fmt.Errorf("%w: cannot Incr after Prefixify", fiterrs.ErrAddingToBuiltTree)
	}
	t.levels[32][addr]++
	return nil
}

// N returns the number of distinct /32 entries inserted so far.
func (t *PrefixTree) N() int {
	return len(t.levels[32])
}

// Prefixify folds leaf weights up through the tree so that every internal
// node's weight equals the sum of its children's weights. It is
// idempotent: a second call is a no-op.
func (t *PrefixTree) Prefixify() {
	if t.prefixified {
		return
	}
	for length := 32; length >= 1; length-- {
		parentLen := length - 1
		for base, w := range t.levels[length] {
			parentBase := base & maskForLen(parentLen)
			t.levels[parentLen][parentBase] += w
		}
	}
	t.prefixified = true
}

func (t *PrefixTree) weightAt(length int, base uint32) (float64, bool) {
	w, ok := t.levels[length][base&maskForLen(length)]
	return w, ok
}

// childBit returns the bit that distinguishes the two children of a
// prefix of the given length.
func childBit(length int) uint32 {
	return uint32(1) << (31 - uint(length))
}

// FitLogitNormal prefixifies the tree if needed, then fits the spread
// parameter sigma of a symmetric logit-normal split model as the sample
// standard deviation of the logit of each internal node's left-child mass
// share, over nodes of weight > 1 at prefix lengths [8, 31].
func (t *PrefixTree) FitLogitNormal() float64 {
	t.Prefixify()

	count := 0
	mean, m2 := 0.0, 0.0

	for length := 8; length <= 31; length++ {
		bit := childBit(length)
		for base, weight := range t.levels[length] {
			if weight <= 1.0 {
				continue
			}
			left, _ := t.weightAt(length+1, base)
			right, _ := t.weightAt(length+1, base|bit)

			w := left / (left + right)
			if w == 0 {
				w = 1 / (2 * weight)
			} else if w == 1 {
				w = 1 - 1/(2*weight)
			}
			x := math.Log(w / (1 - w))

			count++
			delta := x - mean
			mean += delta / float64(count)
			m2 += delta * (x - mean)
		}
	}

	return math.Sqrt(m2 / float64(count-1))
}

// Singularity prefixifies the tree if needed, then estimates the local
// scaling exponent alpha(addr) as the slope of -log2(mass) against prefix
// length along the path from the root to addr, stopping at the first
// ancestor whose weight is <= 1 or missing.
func (t *PrefixTree) Singularity(addr uint32) float64 {
	t.Prefixify()

	n := float64(t.N())
	var sf SlopeFitter
	for length := 0; length <= 32; length++ {
		count, ok := t.weightAt(length, addr)
		if !ok || count <= 1 {
			break
		}
		sf.AddPoint(float64(length), -math.Log2(count/n))
	}
	return sf.Fit()
}
