package engine

import "sync"

// CycleDetector records which (generator, path) pairs have been mapped in
// each Changeset so the optional revisit guard can refuse a second visit.
//
// Example cycle:
//
//	a.js changes → gen-a writes b.js → gen-b writes a.js (again!)
//	→ gen-a would map a.js again ← CYCLE DETECTED
//
// The guard is off unless the engine is built WithRevisitGuard. Without it
// a generator chain that re-triggers itself does not terminate.
type CycleDetector struct {
	mu      sync.Mutex
	history map[string]map[string]bool // map[token]map[generator:path]bool
}

// NewCycleDetector creates a new cycle detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{
		history: make(map[string]map[string]bool),
	}
}

// WouldCycle reports whether generator has already mapped path in the
// Changeset identified by token.
func (c *CycleDetector) WouldCycle(token, generator, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[token] == nil {
		return false
	}
	return c.history[token][generator+":"+path]
}

// Record marks that generator mapped path in this Changeset.
func (c *CycleDetector) Record(token, generator, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[token] == nil {
		c.history[token] = make(map[string]bool)
	}
	c.history[token][generator+":"+path] = true
}

// Clear removes all history for a Changeset. Called when it closes.
func (c *CycleDetector) Clear(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.history, token)
}

// historySize returns the number of Changesets with tracked history.
func (c *CycleDetector) historySize() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.history)
}
