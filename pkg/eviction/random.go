package eviction

import (
	"math/rand/v2"
	"time"
)

const defaultSampleSize = 5

type randomRecord struct {
	idx     int
	size    int64
	touched uint64
}

// random samples a few keys per candidate and returns the one touched least
// recently. Small sets are scanned fully.
type random struct {
	keys       []string
	records    map[string]*randomRecord
	clock      uint64
	sampleSize int
	intn       func(n int) int
	bytes      int64
}

func newRandom(sampleSize int, intn func(n int) int) *random {
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	if intn == nil {
		intn = rand.IntN
	}
	return &random{
		records:    make(map[string]*randomRecord),
		sampleSize: sampleSize,
		intn:       intn,
	}
}

func (r *random) Add(key string, size int64, _ time.Time) {
	r.clock++
	if rec, ok := r.records[key]; ok {
		r.bytes += size - rec.size
		rec.size = size
		rec.touched = r.clock
		return
	}
	r.records[key] = &randomRecord{idx: len(r.keys), size: size, touched: r.clock}
	r.keys = append(r.keys, key)
	r.bytes += size
}

func (r *random) Touch(key string) {
	if rec, ok := r.records[key]; ok {
		r.clock++
		rec.touched = r.clock
	}
}

// Remove swaps the last key into the removed slot.
func (r *random) Remove(key string) {
	rec, ok := r.records[key]
	if !ok {
		return
	}
	last := len(r.keys) - 1
	moved := r.keys[last]
	r.keys[rec.idx] = moved
	r.records[moved].idx = rec.idx
	r.keys = r.keys[:last]
	delete(r.records, key)
	r.bytes -= rec.size
}

func (r *random) EvictionCandidate() (string, bool) {
	n := len(r.keys)
	if n == 0 {
		return "", false
	}

	var (
		best    string
		bestAge uint64
		found   bool
	)
	consider := func(key string) {
		touched := r.records[key].touched
		if !found || touched < bestAge {
			best, bestAge, found = key, touched, true
		}
	}

	if n <= r.sampleSize {
		for _, key := range r.keys {
			consider(key)
		}
		return best, found
	}

	for i := 0; i < r.sampleSize; i++ {
		consider(r.keys[r.intn(n)])
	}
	return best, found
}

func (r *random) Len() int {
	return len(r.keys)
}

func (r *random) Size() int64 {
	return r.bytes
}

func (r *random) Reclaimable(exclude string) int64 {
	if rec, ok := r.records[exclude]; ok {
		return r.bytes - rec.size
	}
	return r.bytes
}
