package engine

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync/atomic"

	"github.com/roach88/macrome/internal/ir"
)

// API is the write capability handed to one generator invocation.
//
// An API is constructed fresh for each Map or Reduce call and released when
// the call returns. Every method of a released API fails with an
// API_RELEASED error; generators must not retain it.
type API struct {
	engine   *Engine
	cs       *Changeset
	gen      *generator
	source   string // triggering path; empty for reduce
	released atomic.Bool
}

// MapAPI is the capability handed to Map. Writes through it also carry a
// generated-from back-reference to the triggering source.
type MapAPI struct {
	API
	change ir.Change
}

// WriteOption customises one Write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	comment     []string
	annotations ir.Annotations
	format      func(string) (string, error)
}

// WithComment adds free-text lines to the written header.
func WithComment(lines ...string) WriteOption {
	return func(o *writeOptions) {
		o.comment = append(o.comment, lines...)
	}
}

// WithAnnotation adds a header annotation after the standard ones.
func WithAnnotation(key, value string) WriteOption {
	return func(o *writeOptions) {
		o.annotations.Set(key, value)
	}
}

// WithFormat runs fn over the content before it is written. A formatting
// error fails the Write.
func WithFormat(fn func(content string) (string, error)) WriteOption {
	return func(o *writeOptions) {
		o.format = fn
	}
}

func newAPI(e *Engine, cs *Changeset, g *generator) *API {
	return &API{engine: e, cs: cs, gen: g}
}

func newMapAPI(e *Engine, cs *Changeset, g *generator, change ir.Change) *MapAPI {
	return &MapAPI{
		API:    API{engine: e, cs: cs, gen: g, source: change.Path},
		change: change,
	}
}

func (a *API) release() {
	a.released.Store(true)
}

func (a *API) check(method string) error {
	if a.released.Load() {
		err := newReleasedError(method, a.gen.id)
		a.engine.logger.Error("capability used after release",
			"generator", a.gen.id,
			"method", method,
		)
		return err
	}
	return nil
}

// Generator returns the ref path of the generator this API belongs to.
func (a *API) Generator() string {
	return a.gen.id
}

// Read returns the content of path. For files with a recognised header the
// header is stripped.
func (a *API) Read(ctx context.Context, p string) (string, error) {
	if err := a.check("Read"); err != nil {
		return "", err
	}
	return a.engine.read(p)
}

// Write writes content to path under an owned header and folds the write
// into the active Changeset.
func (a *API) Write(ctx context.Context, p, content string, opts ...WriteOption) error {
	if err := a.check("Write"); err != nil {
		return err
	}
	var wo writeOptions
	for _, opt := range opts {
		opt(&wo)
	}
	if wo.format != nil {
		formatted, err := wo.format(content)
		if err != nil {
			return fmt.Errorf("format %s: %w", p, err)
		}
		content = formatted
	}
	_, err := a.engine.write(ctx, a.cs, a.gen.id, a.source, p, content, wo)
	return err
}

// Resolve returns path as seen by the engine's filesystem.
func (a *API) Resolve(p string) string {
	if a.check("Resolve") != nil {
		return ""
	}
	return a.engine.abs(p)
}

// GetAnnotations returns path's header annotations, or nil when it has no
// recognised header or does not exist.
func (a *API) GetAnnotations(ctx context.Context, p string) (ir.Annotations, error) {
	if err := a.check("GetAnnotations"); err != nil {
		return nil, err
	}
	return a.engine.annotations(p)
}

// Source returns the path of the change being mapped.
func (a *MapAPI) Source() string {
	return a.change.Path
}

// Change returns the change being mapped.
func (a *MapAPI) Change() ir.Change {
	return a.change
}

// Generate runs fn and writes its output to dest. If fn fails or panics an
// error artifact is written to dest instead and the failure is reported;
// Generate itself then returns nil so the batch continues.
func (a *MapAPI) Generate(ctx context.Context, dest string, fn func(ctx context.Context) (string, error), opts ...WriteOption) error {
	if err := a.check("Generate"); err != nil {
		return err
	}
	content, err := safeCall(func() (string, error) { return fn(ctx) })
	if err != nil {
		a.engine.mapFailed(ctx, a.cs, a.gen, a.change, err)
		return a.writeErrorArtifact(ctx, dest, err)
	}
	return a.Write(ctx, dest, content, opts...)
}

// writeErrorArtifact writes the stand-in that replaces output when a map
// fails: the usual header plus a failure flag, the error text as comment
// lines and no content.
func (a *MapAPI) writeErrorArtifact(ctx context.Context, dest string, cause error) error {
	var wo writeOptions
	wo.annotations.Set(ir.KeyGenerateFailed, "")
	for _, line := range strings.Split(strings.TrimRight(cause.Error(), "\n"), "\n") {
		wo.comment = append(wo.comment, strings.ReplaceAll(line, "*/", "* /"))
	}
	if len(wo.comment) > 0 && strings.HasPrefix(wo.comment[0], "@") {
		wo.comment[0] = " " + wo.comment[0]
	}
	_, err := a.engine.write(ctx, a.cs, a.gen.id, a.source, dest, "", wo)
	return err
}

// safeCall runs fn, converting a panic into an error.
func safeCall[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// relDest resolves a generator-supplied destination. Paths starting with
// "./" or "../" are relative to the directory of the source being mapped.
func relDest(source, dest string) string {
	if source != "" && (strings.HasPrefix(dest, "./") || strings.HasPrefix(dest, "../")) {
		return path.Join(path.Dir(source), dest)
	}
	return dest
}
