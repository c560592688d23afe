// Package bloom implements a fixed-size Bloom filter sized for a target
// false-positive rate, used by SSTable readers to short-circuit lookups
// for keys that are provably absent.
package bloom

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
)

// Filter is a bit array plus hash-function count, built once from a known
// (or estimated) entry count and queried by MayContain.
type Filter struct {
	m      uint32 // bitset length, in bits
	k      uint8  // number of hash probes
	bitset []byte
}

// New sizes a Filter for n expected entries at false-positive rate p,
// using the standard optimal-m/optimal-k formulas:
//
//	m = ceil(-n * ln(p) / (ln2)^2)
//	k = ceil((m/n) * ln2), clamped to [1, 30]
func New(n int, p float64) *Filter {
	if n < 1 {
		n = 1
	}
	m := uint32(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m < 8 {
		m = 8
	}
	k := int(math.Ceil((float64(m) / float64(n)) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return &Filter{
		m:      m,
		k:      uint8(k),
		bitset: make([]byte, (m+7)/8),
	}
}

// Add sets the bits for key's k hash probes.
func (f *Filter) Add(key []byte) {
	h1, h2 := f.baseHashes(key)
	for i := uint32(0); i < uint32(f.k); i++ {
		bit := (h1 + i*h2) % f.m
		f.bitset[bit/8] |= 1 << (bit % 8)
	}
}

// MayContain reports whether key might be present. A false result is
// definitive; a true result may be a false positive.
func (f *Filter) MayContain(key []byte) bool {
	h1, h2 := f.baseHashes(key)
	for i := uint32(0); i < uint32(f.k); i++ {
		bit := (h1 + i*h2) % f.m
		if f.bitset[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

// baseHashes derives the two independent hash values used to synthesize
// k probe positions via double hashing: h1 is murmur3's 32-bit hash of
// key, h2 is a bit-rotated derivative of h1.
func (f *Filter) baseHashes(key []byte) (h1, h2 uint32) {
	h1 = murmur3.Sum32(key)
	h2 = (h1 >> 17) | (h1 << 15)
	return h1, h2
}

// K returns the number of hash probes per key.
func (f *Filter) K() uint8 { return f.k }

// M returns the bitset length in bits.
func (f *Filter) M() uint32 { return f.m }

// Encode serializes the filter as {m uint32, k uint8, bitset bytes},
// matching the bloom section of the SSTable binary layout.
func (f *Filter) Encode() []byte {
	buf := make([]byte, 4+1+len(f.bitset))
	binary.LittleEndian.PutUint32(buf[0:4], f.m)
	buf[4] = f.k
	copy(buf[5:], f.bitset)
	return buf
}

// Decode parses a filter previously produced by Encode.
func Decode(data []byte) (*Filter, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("bloom: encoded filter too short: %d bytes", len(data))
	}
	m := binary.LittleEndian.Uint32(data[0:4])
	k := data[4]
	bitset := data[5:]
	if want := (m + 7) / 8; uint32(len(bitset)) != want {
		return nil, fmt.Errorf("bloom: bitset length mismatch: got %d want %d", len(bitset), want)
	}
	return &Filter{m: m, k: k, bitset: bitset}, nil
}
