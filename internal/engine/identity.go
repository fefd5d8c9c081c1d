package engine

import (
	"sync"

	"github.com/google/uuid"
)

// IdentityGenerator produces placeholder identities for locally added
// rows and correlation tokens for in-flight requests.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IdentityGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, making
// placeholder identities sortable by creation time, which keeps log
// output readable when several rows are in flight.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identifiers for testing.
//
// This enables deterministic test execution and golden trace comparison.
// Tests provide a known sequence of identifiers and verify exact output.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns identifiers in order.
//
// Example:
//
//	gen := NewFixedGenerator("row-1", "row-2")
//	gen.Generate() // "row-1"
//	gen.Generate() // "row-2"
//	gen.Generate() // panic: all identifiers exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined identifier.
// Thread-safe: uses a mutex to protect index access.
//
// Panics when all identifiers have been consumed. This is a fail-fast
// approach to catch test misconfiguration.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all identifiers exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
