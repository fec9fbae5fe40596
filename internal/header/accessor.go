package header

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"

	"github.com/roach88/macrome/internal/ir"
)

var (
	// ErrNotOwned is returned when asked to write a header whose first key
	// is not the ownership marker.
	ErrNotOwned = errors.New("header is not owned by macrome")

	// ErrInvalidHeader is returned when a header cannot be rendered in the
	// accessor's syntax.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrNoAccessor is returned when no accessor handles a file extension.
	ErrNoAccessor = errors.New("no accessor registered")
)

// Accessor reads and writes headers for one family of file types.
type Accessor interface {
	// Name identifies the syntax in logs.
	Name() string

	// Extensions lists the file extensions handled, with leading dot.
	Extensions() []string

	// ReadAnnotations reads only the leading header. It returns nil, nil
	// when the file has no recognised header.
	ReadAnnotations(fs billy.Basic, path string) (ir.Annotations, error)

	// Read reads the whole file. The returned Header is nil when absent.
	Read(fs billy.Basic, path string) (*ir.File, error)

	// Write renders file.Header followed by file.Content. It refuses with
	// ErrNotOwned when the header's first key is not the ownership marker.
	Write(fs billy.Basic, path string, file ir.File) error
}

// Registry maps file extensions to accessors. Each orchestrator owns one.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Accessor
}

// NewRegistry creates a registry with the built-in syntaxes registered.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	r.Register(CFamily())
	r.Register(Hash())
	r.Register(Go())
	return r
}

// NewEmptyRegistry creates a registry with nothing registered.
func NewEmptyRegistry() *Registry {
	return &Registry{byExt: make(map[string]Accessor)}
}

// Register adds a for every extension it declares, replacing any accessor
// previously registered for the same extension.
func (r *Registry) Register(a Accessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range a.Extensions() {
		r.byExt[strings.ToLower(ext)] = a
	}
}

// For returns the accessor for p's extension.
func (r *Registry) For(p string) (Accessor, error) {
	ext := strings.ToLower(path.Ext(p))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.byExt[ext]; ok && ext != "" {
		return a, nil
	}
	return nil, fmt.Errorf("%w for %q", ErrNoAccessor, p)
}
