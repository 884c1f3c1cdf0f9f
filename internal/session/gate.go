package session

import (
	"log"
	"sync"
)

const gateKey = "detection_triggered"

// Gate is the once-per-scope latch in front of the detection analyses. The
// backing store must survive reloads of the console, otherwise every reload
// would re-run the expensive server-side passes.
//
// The original console relied on a single-threaded event loop making its
// check-then-set safe; here the mutex turns ShouldTrigger into a
// compare-and-swap so concurrent callers cannot both observe "not yet
// triggered".
type Gate struct {
	store Store
	mu    sync.Mutex
}

func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// ShouldTrigger reports whether detection still needs to run in this scope
// and latches the flag in the same critical section. It returns true exactly
// once per storage lifetime. If the store is unreachable it errs on the side
// of triggering: a duplicate analysis is cheaper than a silently missing one.
func (g *Gate) ShouldTrigger() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	value, ok, err := g.store.Get(gateKey)
	if err != nil {
		log.Printf("Detection gate store unavailable, triggering anyway: %v", err)
		return true
	}
	if ok && value == "true" {
		return false
	}

	g.markLocked()
	return true
}

// MarkTriggered latches the gate without consulting it. Callers that use
// ShouldTrigger never need this; it exists for flows that obtain results some
// other way and want to suppress the automatic run.
func (g *Gate) MarkTriggered() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markLocked()
}

func (g *Gate) markLocked() {
	if err := g.store.Set(gateKey, "true"); err != nil {
		log.Printf("Could not persist detection gate: %v", err)
	}
}

// Reset returns the gate to its initial state. Only an explicit operator
// action calls this; nothing clears the latch automatically.
func (g *Gate) Reset() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Delete(gateKey)
}
