package engine

import "github.com/roach88/macrome/internal/ir"

// interested returns the generators that should map change, in
// configuration order.
//
// A generator is interested when:
// 1. The change is not a removal (removals cascade, they are not mapped)
// 2. The change was not written by the generator itself
// 3. The generator's Matchable accepts the path
func interested(gens []*generator, change ir.Change) []*generator {
	if change.Op == ir.OpRemove {
		return nil
	}
	var out []*generator
	for _, g := range gens {
		if g.id == change.Generator {
			continue
		}
		if !g.matcher.Matches(change.Path) {
			continue
		}
		out = append(out, g)
	}
	return out
}

// anyInterested reports whether some generator would see path as a root.
func anyInterested(gens []*generator, path string) bool {
	for _, g := range gens {
		if g.matcher.Matches(path) {
			return true
		}
	}
	return false
}
