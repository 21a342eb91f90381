package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of simultaneously active sessions. Acquisition never
// blocks and never queues.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inUse    atomic.Int64
}

// NewGate returns a Gate admitting at most capacity sessions.
func NewGate(capacity int) (*Gate, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("gate capacity must be at least 1, got %d", capacity)
	}
	return &Gate{sem: semaphore.NewWeighted(int64(capacity)), capacity: capacity}, nil
}

// Slot is one unit of gate capacity. Release is idempotent.
type Slot struct {
	gate *Gate
	once sync.Once
}

// TryAcquire takes a slot if one is free.
func (g *Gate) TryAcquire() (*Slot, bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	g.inUse.Add(1)
	return &Slot{gate: g}, true
}

// Release returns the slot to its gate. Only the first call has an effect.
func (s *Slot) Release() {
	s.once.Do(func() {
		s.gate.inUse.Add(-1)
		s.gate.sem.Release(1)
	})
}

// InUse reports how many slots are currently held.
func (g *Gate) InUse() int { return int(g.inUse.Load()) }

// Capacity reports the configured capacity.
func (g *Gate) Capacity() int { return g.capacity }
