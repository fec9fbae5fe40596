// Package generators holds the built-in generators and the registry that
// resolves configured generator refs to instances.
//
// A ref path names a factory, optionally followed by "#label" so that one
// factory can back several configured instances:
//
//	generators:
//	  - path: copy
//	  - path: copy#docs
//	    options: {include: "docs/**/*.md", dest: "{dir}/{name}.txt"}
package generators

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"github.com/roach88/macrome/internal/engine"
)

// ErrUnknownGenerator is returned by Load for a ref naming no factory.
var ErrUnknownGenerator = errors.New("unknown generator")

// Factory builds a generator from its options record.
type Factory func(options map[string]any) (engine.Generator, error)

// Registry maps factory names to factories. It implements engine.Loader.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var _ engine.Loader = (*Registry)(nil)

// NewRegistry returns a registry holding the built-in generators.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	r.factories["copy"] = newCopyFactory
	r.factories["index"] = newIndexFactory
	r.factories["jsonpath"] = newJSONPathFactory
	return r
}

// NewEmptyRegistry returns a registry with no factories.
func NewEmptyRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Names are unique and may not contain '#'.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || strings.Contains(name, "#") {
		return fmt.Errorf("invalid generator name %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("generator %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Names returns the registered factory names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load resolves ref to a fresh generator instance.
func (r *Registry) Load(ref engine.GeneratorRef) (engine.Generator, error) {
	name, _, _ := strings.Cut(ref.Path, "#")
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownGenerator, ref.Path)
	}
	g, err := f(ref.Options)
	if err != nil {
		return nil, fmt.Errorf("generator %q: %w", ref.Path, err)
	}
	return g, nil
}

// Decode copies an options record into out. Unknown keys are an error;
// scalar types are converted where unambiguous.
func Decode(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	return nil
}
