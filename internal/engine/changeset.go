package engine

import (
	"fmt"
	"sync"

	"github.com/roach88/macrome/internal/ir"
)

// ChangesetState is the lifecycle state of a Changeset.
type ChangesetState int

const (
	// StateOpen means the Changeset is still draining and accepts effects.
	StateOpen ChangesetState = iota + 1
	// StateClosed means draining finished; the path list is retained for
	// cascade removal when the root is later removed.
	StateClosed
)

// String returns a lowercase state name.
func (s ChangesetState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ChangesetState(%d)", int(s))
	}
}

// Changeset is the causal closure of one root change: the root plus every
// effect produced, directly or transitively, while processing it.
//
// Effects are folded in with Add while the Changeset is Open. The queue is
// drained breadth-first in discovery order; the path list records every
// path touched, root first, without duplicates.
type Changeset struct {
	root  ir.Change
	token string
	queue *changeQueue

	mu    sync.Mutex
	state ChangesetState
	paths []string
	seen  map[string]bool
	steps int
}

// NewChangeset seeds a Changeset with its root change and opens it.
func NewChangeset(root ir.Change, token string) *Changeset {
	cs := &Changeset{
		root:  root,
		token: token,
		queue: newChangeQueue(),
		state: StateOpen,
		seen:  make(map[string]bool),
	}
	cs.queue.Enqueue(root)
	cs.paths = append(cs.paths, root.Path)
	cs.seen[root.Path] = true
	return cs
}

// Root returns the root change.
func (cs *Changeset) Root() ir.Change { return cs.root }

// Token returns the Changeset's unique token.
func (cs *Changeset) Token() string { return cs.token }

// State returns the current state.
func (cs *Changeset) State() ChangesetState {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.state
}

// Add folds an effect into the Changeset. It is legal only while Open.
func (cs *Changeset) Add(c ir.Change) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.state != StateOpen || !cs.queue.Enqueue(c) {
		return &Error{
			Code:    ErrCodeChangesetClosed,
			Message: fmt.Sprintf("cannot add %s to a closed changeset", c),
			Token:   cs.token,
			Path:    c.Path,
		}
	}
	if !cs.seen[c.Path] {
		cs.seen[c.Path] = true
		cs.paths = append(cs.paths, c.Path)
	}
	return nil
}

// next pops the next pending change in FIFO order.
func (cs *Changeset) next() (ir.Change, bool) {
	c, ok := cs.queue.TryDequeue()
	if ok {
		cs.mu.Lock()
		cs.steps++
		cs.mu.Unlock()
	}
	return c, ok
}

// Paths returns a copy of the path list, root first.
func (cs *Changeset) Paths() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]string, len(cs.paths))
	copy(out, cs.paths)
	return out
}

// Contains reports whether path was touched by this Changeset.
func (cs *Changeset) Contains(path string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.seen[path]
}

// Steps returns how many changes have been drained.
func (cs *Changeset) Steps() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.steps
}

// close transitions to Closed and returns how many pending changes were
// dropped (non-zero only when draining was aborted).
func (cs *Changeset) close() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.state = StateClosed
	return cs.queue.Close()
}

// record renders the Changeset as a journal entry.
func (cs *Changeset) record(seq int64, status string) ir.ChangesetRecord {
	return ir.ChangesetRecord{
		Token:  cs.token,
		Seq:    seq,
		Root:   cs.root.Path,
		Op:     cs.root.Op,
		Status: status,
		Steps:  cs.Steps(),
		Paths:  cs.Paths(),
	}
}
