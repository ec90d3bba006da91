// Package history keeps the most recent decisions in a bounded ring.
package history

import (
	"sync"

	"cate-trust-layer/internal/domain"
)

// DefaultCapacity is the default number of retained entries.
const DefaultCapacity = 1000

// Entry is one recorded decision with its attestation.
type Entry struct {
	Decision domain.RiskDecision
	Signed   domain.SignedDecision
}

// Ring is an append-only buffer evicting the oldest entry once full.
// Safe for concurrent use.
type Ring struct {
	mu     sync.RWMutex
	buf    []Entry
	start  int // index of the oldest entry
	size   int
	latest map[string]Entry
}

// NewRing creates a ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		buf:    make([]Entry, capacity),
		latest: make(map[string]Entry),
	}
}

// Append adds e, evicting the oldest entry when full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.start + r.size) % len(r.buf)
	if r.size == len(r.buf) {
		r.buf[r.start] = e
		r.start = (r.start + 1) % len(r.buf)
	} else {
		r.buf[idx] = e
		r.size++
	}
	r.latest[e.Decision.AssetID] = e
}

// Len returns the number of entries held.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum number of entries.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Latest returns the most recent entry of asset. It survives eviction
// from the ring.
func (r *Ring) Latest(assetID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.latest[assetID]
	return e, ok
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (r *Ring) Recent(n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.start + r.size - 1 - i) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// ByAsset returns up to n entries of asset, oldest first.
func (r *Ring) ByAsset(assetID string, n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for i := 0; i < r.size; i++ {
		e := r.buf[(r.start+i)%len(r.buf)]
		if e.Decision.AssetID == assetID {
			out = append(out, e)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
