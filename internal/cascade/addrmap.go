package cascade

import "sort"

// AddrMap is a rank-preserving, read-only mapping from observed /32
// addresses to synthetic /32 addresses, built once from an observed
// PrefixTree's singularity exponents and a CascadeGenerator's output.
type AddrMap struct {
	images map[uint32]uint32
}

// NewAddrMap sorts both address lists by alpha ascending and builds the
// rank-preserving mapping between them:
//   - equal-length lists map index-for-index;
//   - an oversized synthetic list has observed indices stretched across it,
//     leaving the surplus synthetic addresses unmapped;
//   - an oversized observed list is partitioned into nt contiguous,
//     rank-stratified buckets, one per synthetic address.
func NewAddrMap(observed, synthetic []Addr) *AddrMap {
	f := append([]Addr(nil), observed...)
	t := append([]Addr(nil), synthetic...)
	sort.Slice(f, func(i, j int) bool { return f[i].Alpha < f[j].Alpha })
	sort.Slice(t, func(i, j int) bool { return t[i].Alpha < t[j].Alpha })

	nf, nt := len(f), len(t)
	images := make(map[uint32]uint32, nf)

	switch {
	case nf == 0 || nt == 0:
		// nothing to map
	case nf == nt:
		for i := range f {
			images[f[i].Address] = t[i].Address
		}
	case nf < nt:
		for i := range f {
			j := i * nt / nf
			images[f[i].Address] = t[j].Address
		}
	default: // nf > nt
		for j := range t {
			lo := j * nf / nt
			hi := (j + 1) * nf / nt
			for i := lo; i < hi; i++ {
				images[f[i].Address] = t[j].Address
			}
		}
	}

	return &AddrMap{images: images}
}

// Get returns the synthetic image of an observed address, and whether one
// exists.
func (m *AddrMap) Get(addr uint32) (uint32, bool) {
	img, ok := m.images[addr]
	return img, ok
}

// Images returns every synthetic address this map can produce.
func (m *AddrMap) Images() map[uint32]bool {
	out := make(map[uint32]bool, len(m.images))
	for _, img := range m.images {
		out[img] = true
	}
	return out
}
