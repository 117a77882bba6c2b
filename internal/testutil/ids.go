package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator generates the same plan ID every time.
//
// This enables golden snapshot comparison: the same query translated with a
// FixedIDGenerator produces byte-identical plan snapshots.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a fixed plan ID generator.
// If id is empty, Generate() returns "plan-fixed".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "plan-fixed"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}

// SequenceIDGenerator returns plan-0001, plan-0002, ... and can be reset for
// test reuse.
//
// Thread-safety: all methods are safe for concurrent use.
type SequenceIDGenerator struct {
	mu  sync.Mutex
	seq int
}

// NewSequenceIDGenerator creates a generator whose first ID is plan-0001.
func NewSequenceIDGenerator() *SequenceIDGenerator {
	return &SequenceIDGenerator{}
}

// Generate returns the next ID.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("plan-%04d", g.seq)
}

// Reset restarts the sequence.
func (g *SequenceIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
