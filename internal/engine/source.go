package engine

import (
	"context"

	"github.com/roach88/macrome/internal/ir"
)

// ChangeSource is the abstract filesystem event stream consumed by Watch.
type ChangeSource interface {
	// Watch negotiates a watch on root. Called once before Subscribe.
	Watch(ctx context.Context, root string) error

	// Clock returns a monotonic token marking "now"; a subscription started
	// with it reports only events after this point.
	Clock(ctx context.Context) (string, error)

	// Subscribe starts streaming event batches.
	Subscribe(ctx context.Context, req SubscribeRequest) (Subscription, error)
}

// SubscribeRequest describes what a subscription should report.
type SubscribeRequest struct {
	Root    string
	Since   string
	Exclude []string
	Fields  []string
}

// DefaultFields are the event fields the orchestrator needs.
var DefaultFields = []string{"name", "exists", "new", "mtime_ms"}

// Subscription is a live event stream.
type Subscription interface {
	// Events delivers batches of events. Closed when the subscription ends.
	Events() <-chan []SourceEvent

	// Err returns the error that ended the subscription, if any.
	Err() error

	// Unsubscribe stops delivery and releases resources.
	Unsubscribe() error
}

// SourceEvent is one filesystem event with project-relative Name.
type SourceEvent struct {
	Name    string `json:"name"`
	Exists  bool   `json:"exists"`
	New     bool   `json:"new"`
	MTimeMs int64  `json:"mtime_ms"`
}

// Change translates the event into a root change.
func (ev SourceEvent) Change() ir.Change {
	return ir.ChangeFromEvent(ev.Name, ev.Exists, ev.New, ev.MTimeMs)
}

// VCS answers whether a working tree has uncommitted changes.
type VCS interface {
	IsDirty(ctx context.Context, root string) (bool, error)
}

// GeneratorRef is one configured generator: the module path it resolves
// from and its options record.
type GeneratorRef struct {
	Path    string         `json:"path" yaml:"path" mapstructure:"path"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`
}

// Loader resolves a GeneratorRef to a generator instance. It may be called
// again for the same ref to hot-reload a generator.
type Loader interface {
	Load(ref GeneratorRef) (Generator, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ref GeneratorRef) (Generator, error)

// Load implements Loader.
func (f LoaderFunc) Load(ref GeneratorRef) (Generator, error) { return f(ref) }

// Journal receives an append-only record of processing. It is never read
// back by the engine.
type Journal interface {
	RecordChangeset(ctx context.Context, rec ir.ChangesetRecord) error
	RecordFailure(ctx context.Context, rec ir.FailureRecord) error
}
