package transcript

import "github.com/cespare/xxhash/v2"

// bloomBits and bloomHashes size a per-partition bloom filter for cheap
// "has this id" membership checks before paying for a partition read.
// No bloom-filter library appears anywhere in the reference corpus, so
// this is hand-rolled atop the teacher's xxhash dependency: k independent
// hashes are derived from two xxhash seeds via the standard
// double-hashing trick (Kirsch-Mitzenmacher), avoiding k separate hash
// functions.
const (
	bloomBits   = 2048
	bloomHashes = 4
)

type bloomFilter struct {
	bits [bloomBits / 64]uint64
}

func newBloomFilter() *bloomFilter {
	return &bloomFilter{}
}

func (b *bloomFilter) add(id string) {
	h1, h2 := bloomSeeds(id)
	for i := 0; i < bloomHashes; i++ {
		idx := (h1 + uint64(i)*h2) % bloomBits
		b.bits[idx/64] |= 1 << (idx % 64)
	}
}

func (b *bloomFilter) mayContain(id string) bool {
	h1, h2 := bloomSeeds(id)
	for i := 0; i < bloomHashes; i++ {
		idx := (h1 + uint64(i)*h2) % bloomBits
		if b.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

func bloomSeeds(id string) (uint64, uint64) {
	h1 := xxhash.Sum64String(id)
	h2 := xxhash.Sum64String(id + "\x00salt")
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}
