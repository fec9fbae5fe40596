// Package store provides the optional SQLite changeset journal.
//
// The journal is append-only:
//   - Changesets: one row per closed Changeset (token, root, status, steps)
//   - Changeset paths: the Changeset's path list in discovery order
//   - Failures: generator failures that produced error artifacts
//
// It is an audit trail for the trace command and is never read back to
// recover engine state: ownership and provenance always come from file
// headers.
//
// # Ordering
//
// Every query orders by seq ASC, token ASC COLLATE BINARY, so results are
// identical across runs regardless of wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
