// Package testutil holds deterministic helpers shared by the engine-level
// test suites: sequential Changeset tokens and in-memory project trees.
package testutil
