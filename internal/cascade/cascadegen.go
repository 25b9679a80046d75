package cascade

import (
	"math"
	"math/rand"

	"tracespectra/internal/fiterrs"
)

// Addr pairs a synthesized /32 address with the singularity exponent the
// cascade assigned it along the way.
type Addr struct {
	Address uint32
	Alpha   float64
}

// prefix is a node in the conservative cascade's implicit binary tree,
// identified by its base address and bit length.
type prefix struct {
	base uint32
	len  int
}

// capacity returns the number of distinct /32 addresses a prefix of this
// length can hold.
func (p prefix) capacity() uint64 {
	return uint64(1) << uint(32-p.len)
}

// CascadeGenerator samples n synthetic /32 addresses from a symmetric
// logit-normal conservative cascade with spread sigma, each tagged with
// the singularity exponent accumulated along its path from the root.
type CascadeGenerator struct {
	sigma float64
	rng   *rand.Rand
}

// NewCascadeGenerator returns a generator with the given spread parameter,
// drawing from rng. The caller owns rng and must not use it concurrently.
func NewCascadeGenerator(sigma float64, rng *rand.Rand) *CascadeGenerator {
	return &CascadeGenerator{sigma: sigma, rng: rng}
}

// Generate samples n addresses.
func (g *CascadeGenerator) Generate(n int) []Addr {
	if n == 0 {
		return nil
	}
	out := make([]Addr, 0, n)
	g.recurse(prefix{base: 0, len: 0}, uint64(n), SlopeFitter{}, uint64(n), &out)
	return out
}

func (g *CascadeGenerator) recurse(p prefix, k uint64, sf SlopeFitter, total uint64, out *[]Addr) {
	if k == 0 {
		return
	}
	if p.len == 32 {
		*out = append(*out, Addr{Address: p.base, Alpha: sf.Fit()})
		return
	}

	z := g.rng.NormFloat64() * g.sigma
	w := 1 / (1 + math.Exp(-z))

	leftK := roundHalfAwayFromZero(float64(k) * w)
	rightK := k - leftK

	childLen := p.len + 1
	bit := childBit(p.len)
	left := prefix{base: p.base, len: childLen}
	right := prefix{base: p.base | bit, len: childLen}

	capL, capR := left.capacity(), right.capacity()
	if leftK > capL {
		spill := leftK - capL
		leftK = capL
		rightK += spill
	}
	if rightK > capR {
		spill := rightK - capR
		rightK = capR
		leftK += spill
	}
	if leftK > capL || rightK > capR {
		fiterrs.InvariantViolation("cascade: demand %d exceeds combined child capacity %d+%d at prefix /%d", k, capL, capR, p.len)
	}

	if k > 1 {
		sf.AddPoint(float64(p.len), -math.Log2(float64(k)/float64(total)))
	}

	g.recurse(left, leftK, sf, total, out)
	g.recurse(right, rightK, sf, total, out)
}

// roundHalfAwayFromZero rounds x to the nearest integer, halves away
// from zero.
func roundHalfAwayFromZero(x float64) uint64 {
	if x < 0 {
		return 0
	}
	return uint64(math.Floor(x + 0.5))
}
