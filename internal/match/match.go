// Package match compiles include/exclude glob expressions into path
// predicates.
//
// A path matches a Matchable iff it satisfies Include and does not satisfy
// Exclude. An absent Include matches everything; an absent Exclude matches
// nothing. Patterns use doublestar syntax ("**" spans directories).
package match

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Expression is an ordered set of patterns, OR-combined. A nil Expression is
// absent; an empty non-nil Expression matches nothing.
type Expression []string

// One builds a single-pattern expression.
func One(pattern string) Expression {
	return Expression{pattern}
}

// Matchable is a generator's declared interest set.
type Matchable struct {
	Include Expression
	Exclude Expression
}

// Matcher is a compiled Matchable.
type Matcher struct {
	include Expression
	exclude Expression
}

// Compile validates every pattern of m and returns its matcher.
// A nil m compiles to a matcher that accepts every path.
func Compile(m *Matchable) (*Matcher, error) {
	if m == nil {
		return &Matcher{}, nil
	}
	if err := validate(m.Include); err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	if err := validate(m.Exclude); err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	return &Matcher{include: clone(m.Include), exclude: clone(m.Exclude)}, nil
}

// Matches reports whether path is included and not excluded.
func (m *Matcher) Matches(path string) bool {
	if m.exclude != nil && anyMatch(m.exclude, path) {
		return false
	}
	return m.include == nil || anyMatch(m.include, path)
}

// SkipDir reports whether the whole subtree rooted at dir can be skipped.
// That holds only when an Exclude pattern covers every path below dir: "**",
// or "X/**" where X matches dir. Include never prunes, since a directory that
// fails Include may still contain included files.
func (m *Matcher) SkipDir(dir string) bool {
	dir = strings.TrimSuffix(dir, "/")
	for _, p := range m.exclude {
		if p == "**" {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, "/**"); ok && doublestar.MatchUnvalidated(prefix, dir) {
			return true
		}
	}
	return false
}

func anyMatch(expr Expression, path string) bool {
	for _, p := range expr {
		if doublestar.MatchUnvalidated(p, path) {
			return true
		}
	}
	return false
}

func validate(expr Expression) error {
	for _, p := range expr {
		if p == "" {
			return fmt.Errorf("empty pattern")
		}
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid pattern %q", p)
		}
	}
	return nil
}

func clone(expr Expression) Expression {
	if expr == nil {
		return nil
	}
	out := make(Expression, len(expr))
	copy(out, expr)
	return out
}

// Cache memoises compiled matchers by Matchable identity. Two generators
// with textually identical patterns still get distinct entries.
type Cache struct {
	mu       sync.Mutex
	matchers map[*Matchable]*Matcher
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{matchers: make(map[*Matchable]*Matcher)}
}

// Compile returns the memoised matcher for m, compiling it on first use.
func (c *Cache) Compile(m *Matchable) (*Matcher, error) {
	if m == nil {
		return &Matcher{}, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if mm, ok := c.matchers[m]; ok {
		return mm, nil
	}
	mm, err := Compile(m)
	if err != nil {
		return nil, err
	}
	c.matchers[m] = mm
	return mm, nil
}

// Forget drops the entry for m. Used when a generator handle is replaced.
func (c *Cache) Forget(m *Matchable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.matchers, m)
}

// Len returns the number of memoised matchers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.matchers)
}
