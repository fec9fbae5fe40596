package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialTokens hands out Changeset tokens cs-1, cs-2, ... and never runs
// out, unlike engine.FixedGenerator.
//
// Tokens depend only on the order Changesets are opened, so a scenario run
// with concurrency 1 journals identical tokens every time.
type SequentialTokens struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialTokens returns a generator whose tokens start with prefix.
// An empty prefix defaults to "cs".
func NewSequentialTokens(prefix string) *SequentialTokens {
	if prefix == "" {
		prefix = "cs"
	}
	return &SequentialTokens{prefix: prefix}
}

// Generate returns the next token.
func (g *SequentialTokens) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}

// Issued reports how many tokens have been handed out.
func (g *SequentialTokens) Issued() int64 {
	return g.n.Load()
}
