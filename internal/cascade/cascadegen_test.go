package cascade

import (
	"math/rand"
	"testing"
)

func TestCascadeGeneratorProducesExactlyN(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	gen := NewCascadeGenerator(0.4, rng)

	const n = 2000
	addrs := gen.Generate(n)
	if len(addrs) != n {
		t.Fatalf("Generate(%d) produced %d addresses", n, len(addrs))
	}

	seen := make(map[uint32]int, n)
	for _, a := range addrs {
		seen[a.Address]++
	}
	// Leaves are distinct /32s; the recursion never revisits a prefix.
	if len(seen) != n {
		t.Fatalf("got %d distinct addresses, want %d", len(seen), n)
	}
}

func TestCascadeGeneratorLargeSigmaNeverOverflowsCapacity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	gen := NewCascadeGenerator(50.0, rng) // pushes w toward 0 or 1 almost always

	const n = 4096
	addrs := gen.Generate(n)
	if len(addrs) != n {
		t.Fatalf("Generate(%d) produced %d addresses at high sigma", n, len(addrs))
	}
	seen := make(map[uint32]bool, n)
	for _, a := range addrs {
		if seen[a.Address] {
			t.Fatalf("duplicate address %#x emitted", a.Address)
		}
		seen[a.Address] = true
	}
}

func TestCascadeGeneratorRoundTripFitsSigma(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	const sigma = 0.5
	gen := NewCascadeGenerator(sigma, rng)

	addrs := gen.Generate(10000)
	tr := NewPrefixTree()
	for _, a := range addrs {
		tr.Add(a.Address, 1.0)
	}
	got := tr.FitLogitNormal()
	if diff := got - sigma; diff > 0.1 || diff < -0.1 {
		t.Fatalf("FitLogitNormal() = %v, want within 0.1 of %v", got, sigma)
	}
}
