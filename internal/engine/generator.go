package engine

import (
	"context"
	"sync"

	"github.com/roach88/macrome/internal/ir"
	"github.com/roach88/macrome/internal/match"
)

// Generator is the mandatory part of the generator protocol: the
// include/exclude filter choosing which changes the generator sees.
// A nil Matchable matches every path.
type Generator interface {
	Matchable() *match.Matchable
}

// Mapper is implemented by generators that transform each matched change.
// The returned result is kept for Reduce.
type Mapper interface {
	Map(ctx context.Context, api *MapAPI, change ir.Change) (any, error)
}

// Reducer is implemented by generators that aggregate a whole batch.
// Reduce runs at most once per batch, after every Map of that generator,
// and only if at least one Map ran.
type Reducer interface {
	Reduce(ctx context.Context, api *API, results map[string]MapResult) error
}

// DestPather is implemented by map generators with a fixed output path per
// source. When Map fails the error artifact is written there.
type DestPather interface {
	DestPath(source string) string
}

// Closer is implemented by generators holding resources; Close is called
// when the generator is replaced or the engine shuts down.
type Closer interface {
	Close() error
}

// MapResult is what one Map call produced for a path.
type MapResult struct {
	Change ir.Change
	Result any
	// Err is set when Map failed and an error artifact was written instead.
	Err error
}

// generator is the engine's handle on one loaded generator. The result map
// is owned by the engine and never exposed to generator code directly.
type generator struct {
	id      string
	ref     GeneratorRef
	impl    Generator
	matcher *match.Matcher

	mu      sync.Mutex
	results map[string]MapResult
	dirty   bool
}

func newGenerator(ref GeneratorRef, impl Generator, cache *match.Cache) (*generator, error) {
	m, err := cache.Compile(impl.Matchable())
	if err != nil {
		return nil, err
	}
	return &generator{
		id:      ref.Path,
		ref:     ref,
		impl:    impl,
		matcher: m,
		results: make(map[string]MapResult),
	}, nil
}

// record stores a map result and marks the generator for reduce.
func (g *generator) record(r MapResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[r.Change.Path] = r
	g.dirty = true
}

// drop forgets the result for path.
func (g *generator) drop(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.results, path)
}

// takeDirty reports whether a map ran since the last reduce, and resets.
func (g *generator) takeDirty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.dirty
	g.dirty = false
	return d
}

// snapshot copies the result map for Reduce.
func (g *generator) snapshot() map[string]MapResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]MapResult, len(g.results))
	for k, v := range g.results {
		out[k] = v
	}
	return out
}

func (g *generator) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results = make(map[string]MapResult)
	g.dirty = false
}
