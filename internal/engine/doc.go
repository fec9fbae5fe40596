// Package engine implements the macrome orchestrator.
//
// The engine runs generators over a project tree and writes their output
// back into it. Its hard problem is causality: when a generator writes B
// because A changed, the write to B is an effect of A, not a new root.
//
// ARCHITECTURE:
//
// Changesets:
// Every root change opens a Changeset. The Changeset's queue is drained
// breadth-first; every interested generator maps the popped change before
// the next pop, and each write a generator makes through its capability
// object is folded back into the same Changeset. When the queue is empty the
// Changeset closes and is retained, keyed by its root path, so that a later
// removal of the root can cascade to every effect.
//
// Event Processing Flow:
// 1. Root changes arrive from Build (a traversal) or Watch (a change source)
// 2. Roots that carry an owned header are ignored (they are output)
// 3. Independent roots are drained concurrently, bounded by WithConcurrency
// 4. Each generator that mapped in the batch then reduces once
//
// Ownership:
// A file is owned when its header's first annotation is the ownership
// marker. Ownership is read from disk every time; there is no index. The
// only persisted state is the generated files themselves.
//
// GUARDS:
//
// The causal queue has no cycle or depth guard by default, so a generator
// chain that re-triggers itself does not terminate. WithMaxChainLength and
// WithRevisitGuard add opt-in limits. A generator is never mapped against
// its own output.
package engine
