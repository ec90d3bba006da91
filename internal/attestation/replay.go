package attestation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrReplayed is returned when a decision hash was already accepted.
var ErrReplayed = errors.New("decision already used")

// Replay guard defaults, matching the on-chain used-decisions set.
const (
	DefaultReplayRetention = time.Hour
	DefaultReplayCapacity  = 1000
)

// ReplayGuard records accepted decision hashes and rejects repeats.
type ReplayGuard interface {
	// Accept records hash, returning ErrReplayed if it was seen within retention.
	Accept(ctx context.Context, hash [32]byte) error
}

type seenEntry struct {
	hash [32]byte
	at   time.Time
}

// MemoryReplayGuard is a bounded in-process seen-hash set. Entries expire
// after retention; when full the oldest entry is evicted first.
type MemoryReplayGuard struct {
	retention time.Duration
	capacity  int
	now       func() time.Time

	mu    sync.Mutex
	order []seenEntry // oldest first
	seen  map[[32]byte]time.Time
}

// NewMemoryReplayGuard creates a guard. Non-positive arguments use defaults.
func NewMemoryReplayGuard(retention time.Duration, capacity int) *MemoryReplayGuard {
	if retention <= 0 {
		retention = DefaultReplayRetention
	}
	if capacity <= 0 {
		capacity = DefaultReplayCapacity
	}
	return &MemoryReplayGuard{
		retention: retention,
		capacity:  capacity,
		now:       time.Now,
		seen:      make(map[[32]byte]time.Time, capacity),
	}
}

// Compile-time interface check.
var _ ReplayGuard = (*MemoryReplayGuard)(nil)

// Accept implements ReplayGuard.
func (g *MemoryReplayGuard) Accept(_ context.Context, hash [32]byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.expire(now)

	if _, ok := g.seen[hash]; ok {
		return ErrReplayed
	}

	if len(g.order) >= g.capacity {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, oldest.hash)
	}
	g.order = append(g.order, seenEntry{hash: hash, at: now})
	g.seen[hash] = now
	return nil
}

// Len returns the number of tracked hashes.
func (g *MemoryReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expire(g.now())
	return len(g.order)
}

func (g *MemoryReplayGuard) expire(now time.Time) {
	cutoff := now.Add(-g.retention)
	drop := 0
	for drop < len(g.order) && !g.order[drop].at.After(cutoff) {
		delete(g.seen, g.order[drop].hash)
		drop++
	}
	if drop > 0 {
		g.order = append(g.order[:0], g.order[drop:]...)
	}
}
