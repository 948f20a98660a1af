// Package dedup provides duplicate detection for listing identities.
//
// A BloomFilter gives fixed-memory probabilistic membership (no false
// negatives); a Deduplicator layers an exact set on top for small volumes
// and migrates to the filter once the set outgrows its threshold.
package dedup

import (
	"hash/fnv"
	"math"
	"math/bits"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// BloomFilter is a fixed-size probabilistic set. Bits are only ever set,
// never cleared, so there is no removal operation. Safe for concurrent use.
type BloomFilter struct {
	size      uint64 // bit array length m
	hashCount int    // hash function count k

	expectedItems     int
	falsePositiveRate float64

	words   []uint64
	added   int64
	setBits int64
	mu      sync.RWMutex
}

// BloomStats describes the current state of a filter.
type BloomStats struct {
	SizeBits        uint64
	HashCount       int
	ElementsAdded   int64
	FillRatio       float64
	EstimatedFPRate float64
	ExpectedItems   int
	TargetFPRate    float64
}

// NewBloomFilter sizes the bit array and hash count from the expected item
// count and target false-positive rate:
//
//	m = ceil(-n * ln(p) / ln(2)^2)
//	k = ceil((m/n) * ln(2))
func NewBloomFilter(expectedItems int, falsePositiveRate float64) *BloomFilter {
	if expectedItems <= 0 {
		expectedItems = 100000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	m := uint64(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if m == 0 {
		m = 1
	}
	k := int(math.Ceil(float64(m) / float64(expectedItems) * math.Ln2))
	if k < 1 {
		k = 1
	}

	return &BloomFilter{
		size:              m,
		hashCount:         k,
		expectedItems:     expectedItems,
		falsePositiveRate: falsePositiveRate,
		words:             make([]uint64, (m+63)/64),
	}
}

// indexes derives the k bit positions via double hashing:
// h(i) = (h1 + i*h2) mod m.
func (f *BloomFilter) indexes(key string) []uint64 {
	h1 := xxhash.Sum64String(key)

	fh := fnv.New64a()
	_, _ = fh.Write([]byte(key))
	h2 := fh.Sum64() | 1

	out := make([]uint64, f.hashCount)
	for i := 0; i < f.hashCount; i++ {
		out[i] = (h1 + uint64(i)*h2) % f.size
	}
	return out
}

// Add sets the k bit positions for key.
func (f *BloomFilter) Add(key string) {
	idxs := f.indexes(key)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, idx := range idxs {
		word, bit := idx/64, idx%64
		mask := uint64(1) << bit
		if f.words[word]&mask == 0 {
			f.words[word] |= mask
			f.setBits++
		}
	}
	f.added++
}

// Contains reports possible membership. A false result is authoritative:
// the key was never added. A true result may be a false positive.
func (f *BloomFilter) Contains(key string) bool {
	idxs := f.indexes(key)

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, idx := range idxs {
		if f.words[idx/64]&(uint64(1)<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// Len returns the number of Add calls.
func (f *BloomFilter) Len() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.added
}

// Clear resets all bits.
func (f *BloomFilter) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.words {
		f.words[i] = 0
	}
	f.added = 0
	f.setBits = 0
}

// IsFull reports whether more than half the bits are set; beyond that point
// the false-positive rate degrades quickly and the filter should be rebuilt.
func (f *BloomFilter) IsFull() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return float64(f.setBits)/float64(f.size) > 0.5
}

// Stats returns a snapshot including the estimated false-positive rate
// p = (1 - e^(-kn/m))^k for the current fill level.
func (f *BloomFilter) Stats() BloomStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var estimated float64
	if f.added > 0 {
		kn := float64(f.hashCount) * float64(f.added)
		estimated = math.Pow(1-math.Exp(-kn/float64(f.size)), float64(f.hashCount))
	}

	return BloomStats{
		SizeBits:        f.size,
		HashCount:       f.hashCount,
		ElementsAdded:   f.added,
		FillRatio:       float64(f.setBits) / float64(f.size),
		EstimatedFPRate: estimated,
		ExpectedItems:   f.expectedItems,
		TargetFPRate:    f.falsePositiveRate,
	}
}

// countSetBits recomputes the popcount; used as a consistency check in tests.
func (f *BloomFilter) countSetBits() int64 {
	var n int64
	for _, w := range f.words {
		n += int64(bits.OnesCount64(w))
	}
	return n
}
