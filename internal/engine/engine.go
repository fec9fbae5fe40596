package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/macrome/internal/header"
	"github.com/roach88/macrome/internal/ir"
	"github.com/roach88/macrome/internal/match"
)

// DefaultConcurrency bounds how many independent root Changesets are
// drained at once.
const DefaultConcurrency = 8

// reducePrefix keys the Changeset that holds a generator's reduce output.
const reducePrefix = "reduce:"

// Engine is the orchestrator: it owns the generator handles, the accessor
// registry and every retained Changeset, and runs the build, watch, clean
// and check commands over one project tree.
//
// Thread-safety model:
//   - ProcessChanges drains independent roots concurrently; the queue of
//     one Changeset is always drained in order by a single goroutine.
//   - Generator result maps are mutated only by the engine.
//   - Commands must not overlap; Watch serializes its own batches.
type Engine struct {
	fs          billy.Filesystem
	root        string
	logger      *slog.Logger
	accessors   *header.Registry
	loader      Loader
	refs        []GeneratorRef
	exclude     []string
	concurrency int
	maxChain    int
	revisit     *CycleDetector
	tokens      TokenGenerator
	journal     Journal
	metrics     *Metrics
	clock       *Clock
	cache       *match.Cache

	reloadPath string
	reload     func(ctx context.Context) ([]GeneratorRef, error)

	mu       sync.Mutex
	gens     []*generator
	retained map[string]*Changeset // root path → last closed Changeset
	claims   map[string]string     // path → token of the open Changeset that wrote it

	stats stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithAccessors sets the header accessor registry. Default: header.NewRegistry().
func WithAccessors(r *header.Registry) Option {
	return func(e *Engine) { e.accessors = r }
}

// WithLoader sets the generator loader used by LoadGenerators.
func WithLoader(l Loader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithGenerators sets the generator refs resolved by LoadGenerators.
func WithGenerators(refs ...GeneratorRef) Option {
	return func(e *Engine) { e.refs = append([]GeneratorRef(nil), refs...) }
}

// WithExclude adds instance-level exclusions on top of match.AlwaysExcluded.
func WithExclude(patterns ...string) Option {
	return func(e *Engine) { e.exclude = append(e.exclude, patterns...) }
}

// WithConcurrency bounds concurrent root Changesets. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.concurrency = n
	}
}

// WithMaxChainLength aborts a Changeset after n drained changes.
// Default: 0, unlimited.
func WithMaxChainLength(n int) Option {
	return func(e *Engine) { e.maxChain = n }
}

// WithRevisitGuard lets a generator map a given path at most once per
// Changeset. Default: off.
func WithRevisitGuard() Option {
	return func(e *Engine) { e.revisit = NewCycleDetector() }
}

// WithTokenGenerator sets the Changeset token source. Default: UUIDv7Generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithJournal records closed Changesets and failures to j.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithMetrics records prometheus metrics to m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock sets the sequence clock stamped on journal records.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithReloader makes Watch re-resolve generators when configPath (relative
// to the project root) changes. fn returns the new generator refs.
func WithReloader(configPath string, fn func(ctx context.Context) ([]GeneratorRef, error)) Option {
	return func(e *Engine) {
		e.reloadPath = configPath
		e.reload = fn
	}
}

// New creates an Engine over the project rooted at root within fs.
func New(fs billy.Filesystem, root string, opts ...Option) *Engine {
	if root == "." {
		root = ""
	}
	e := &Engine{
		fs:          fs,
		root:        root,
		logger:      slog.Default(),
		accessors:   header.NewRegistry(),
		concurrency: DefaultConcurrency,
		tokens:      UUIDv7Generator{},
		clock:       NewClock(),
		cache:       match.NewCache(),
		retained:    make(map[string]*Changeset),
		claims:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadGenerators resolves every configured ref through the loader and
// replaces the current generator set. Any failure aborts without changing
// the current set.
func (e *Engine) LoadGenerators(ctx context.Context) error {
	if len(e.refs) > 0 && e.loader == nil {
		return &Error{Code: ErrCodeGeneratorLoad, Message: "generators configured but no loader"}
	}
	gens := make([]*generator, 0, len(e.refs))
	for _, ref := range e.refs {
		g, err := e.load(ref)
		if err != nil {
			return err
		}
		gens = append(gens, g)
	}

	e.mu.Lock()
	old := e.gens
	e.gens = gens
	e.mu.Unlock()
	e.closeGenerators(old)

	e.logger.Debug("generators loaded", "count", len(gens))
	return nil
}

// ReplaceGenerator re-resolves ref and swaps the handle with the same path,
// or appends it. The previous instance's results are discarded.
func (e *Engine) ReplaceGenerator(ref GeneratorRef) error {
	if e.loader == nil {
		return &Error{Code: ErrCodeGeneratorLoad, Message: "no loader", Generator: ref.Path}
	}
	g, err := e.load(ref)
	if err != nil {
		return err
	}
	e.install(g)
	return nil
}

// Register installs a generator instance directly, bypassing the loader.
func (e *Engine) Register(ref GeneratorRef, impl Generator) error {
	g, err := newGenerator(ref, impl, e.cache)
	if err != nil {
		return &Error{Code: ErrCodeGeneratorLoad, Message: "invalid matchable", Generator: ref.Path, Err: err}
	}
	e.install(g)
	return nil
}

func (e *Engine) load(ref GeneratorRef) (*generator, error) {
	impl, err := e.loader.Load(ref)
	if err != nil {
		return nil, &Error{Code: ErrCodeGeneratorLoad, Message: "cannot resolve generator", Generator: ref.Path, Err: err}
	}
	g, err := newGenerator(ref, impl, e.cache)
	if err != nil {
		return nil, &Error{Code: ErrCodeGeneratorLoad, Message: "invalid matchable", Generator: ref.Path, Err: err}
	}
	return g, nil
}

func (e *Engine) install(g *generator) {
	e.mu.Lock()
	var old *generator
	for i, cur := range e.gens {
		if cur.id == g.id {
			old = cur
			e.gens[i] = g
			break
		}
	}
	if old == nil {
		e.gens = append(e.gens, g)
	}
	e.mu.Unlock()

	if old != nil {
		e.closeGenerators([]*generator{old})
		e.logger.Info("generator replaced", "generator", g.id)
	}
}

func (e *Engine) closeGenerators(gens []*generator) {
	for _, g := range gens {
		e.cache.Forget(g.impl.Matchable())
		if c, ok := g.impl.(Closer); ok {
			if err := c.Close(); err != nil {
				e.logger.Warn("closing generator failed", "generator", g.id, "error", err)
			}
		}
	}
}

// Close releases every generator.
func (e *Engine) Close() error {
	e.mu.Lock()
	gens := e.gens
	e.gens = nil
	e.mu.Unlock()
	e.closeGenerators(gens)
	return nil
}

// Generators returns the ref paths of the installed generators, in order.
func (e *Engine) Generators() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.gens))
	for i, g := range e.gens {
		ids[i] = g.id
	}
	return ids
}

func (e *Engine) generators() []*generator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*generator(nil), e.gens...)
}

// Retained returns the path list of the Changeset retained for root, or nil.
func (e *Engine) Retained(root string) []string {
	e.mu.Lock()
	cs := e.retained[root]
	e.mu.Unlock()
	if cs == nil {
		return nil
	}
	return cs.Paths()
}

// ProcessChanges runs a batch of root changes through the causal loop and
// then runs reduce for every generator that mapped in the batch.
//
// Roots are deduplicated by path (the last change wins). ADD and UPDATE
// roots for files carrying an owned header are ignored: they are output,
// not sources. Independent roots are drained concurrently.
func (e *Engine) ProcessChanges(ctx context.Context, changes []ir.Change) error {
	roots, errs := e.roots(changes)
	gens := e.generators()

	var (
		eg errgroup.Group
		mu sync.Mutex
	)
	eg.SetLimit(e.concurrency)
	for _, root := range roots {
		eg.Go(func() error {
			if err := e.processRoot(ctx, root, gens); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	if err := e.reduceAll(ctx, gens); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) roots(changes []ir.Change) ([]ir.Change, []error) {
	var (
		out   []ir.Change
		errs  []error
		index = make(map[string]int, len(changes))
	)
	for _, c := range changes {
		p, err := ir.NormalizePath(c.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.Path = p
		c.Generator = ""
		if i, ok := index[p]; ok {
			out[i] = c
			continue
		}
		index[p] = len(out)
		out = append(out, c)
	}

	kept := out[:0]
	for _, c := range out {
		if c.Op != ir.OpRemove && e.owned(c.Path) {
			e.logger.Debug("ignoring change to generated file", "path", c.Path, "op", c.Op.String())
			continue
		}
		kept = append(kept, c)
	}
	return kept, errs
}

func (e *Engine) processRoot(ctx context.Context, root ir.Change, gens []*generator) error {
	prev := e.retainedFor(root.Path)
	if root.Op == ir.OpRemove {
		return e.removeRoot(ctx, root, prev, gens)
	}
	if prev == nil && !anyInterested(gens, root.Path) {
		return nil
	}

	cs := NewChangeset(root, e.tokens.Generate())
	e.logger.Debug("changeset opened", "token", cs.token, "root", root.Path, "op", root.Op.String())

	err := e.drain(ctx, cs, gens, e.newQuota())
	status := ir.StatusClosed
	if err != nil {
		status = ir.StatusAborted
	} else if prev != nil {
		e.removeStale(ctx, cs, prev, gens)
		err = e.drain(ctx, cs, gens, nil)
	}
	e.closeChangeset(ctx, cs, status)
	e.retain(root.Path, cs)
	return err
}

// removeRoot cascades a root removal: every effect of the retained
// Changeset that still carries an owned header is deleted, then the
// retained Changeset is discarded.
func (e *Engine) removeRoot(ctx context.Context, root ir.Change, prev *Changeset, gens []*generator) error {
	for _, g := range gens {
		g.drop(root.Path)
	}
	if prev == nil {
		return nil
	}

	cs := NewChangeset(root, e.tokens.Generate())
	for _, p := range prev.Paths()[1:] {
		if _, err := e.remove(cs, p, gens); err != nil {
			e.logger.Warn("removing effect failed", "path", p, "root", root.Path, "error", err)
		}
	}
	err := e.drain(ctx, cs, gens, nil)
	e.closeChangeset(ctx, cs, ir.StatusDiscarded)
	e.forget(root.Path)
	return err
}

// removeStale deletes effects the previous Changeset for the same root
// produced that the new one did not reach again.
func (e *Engine) removeStale(ctx context.Context, cs, prev *Changeset, gens []*generator) {
	for _, p := range prev.Paths()[1:] {
		if cs.Contains(p) {
			continue
		}
		if _, err := e.remove(cs, p, gens); err != nil {
			e.logger.Warn("removing stale output failed", "path", p, "root", cs.root.Path, "error", err)
		}
	}
}

// drain pops changes in FIFO order and maps every interested generator
// against each before popping the next.
func (e *Engine) drain(ctx context.Context, cs *Changeset, gens []*generator, quota *QuotaEnforcer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		change, ok := cs.next()
		if !ok {
			return nil
		}
		if quota != nil {
			if err := quota.Check(cs.token); err != nil {
				e.logger.Error("changeset aborted",
					"token", cs.token,
					"root", cs.root.Path,
					"steps", quota.Current(),
					"limit", quota.MaxSteps(),
				)
				return &Error{
					Code:    ErrCodeStepsExceeded,
					Message: "changeset exceeded max chain length",
					Token:   cs.token,
					Path:    cs.root.Path,
					Err:     err,
				}
			}
		}
		e.metrics.changeDrained()

		for _, g := range interested(gens, change) {
			if e.revisit != nil {
				if e.revisit.WouldCycle(cs.token, g.id, change.Path) {
					e.logger.Warn("revisit guard skipped map",
						"code", ErrCodeCycleDetected,
						"generator", g.id,
						"path", change.Path,
						"token", cs.token,
					)
					continue
				}
				e.revisit.Record(cs.token, g.id, change.Path)
			}
			e.mapChange(ctx, cs, g, change)
		}
	}
}

func (e *Engine) mapChange(ctx context.Context, cs *Changeset, g *generator, change ir.Change) {
	mapper, ok := g.impl.(Mapper)
	if !ok {
		g.record(MapResult{Change: change})
		return
	}

	api := newMapAPI(e, cs, g, change)
	result, err := safeCall(func() (any, error) { return mapper.Map(ctx, api, change) })
	if err != nil {
		e.mapFailed(ctx, cs, g, change, err)
		if dp, ok := g.impl.(DestPather); ok {
			if werr := api.writeErrorArtifact(ctx, dp.DestPath(change.Path), err); werr != nil {
				e.logger.Warn("writing error artifact failed", "generator", g.id, "path", change.Path, "error", werr)
			}
		}
	}
	api.release()
	g.record(MapResult{Change: change, Result: result, Err: err})
}

func (e *Engine) mapFailed(ctx context.Context, cs *Changeset, g *generator, change ir.Change, err error) {
	e.failed(ctx, cs.token, g.id, change.Path, err)
}

func (e *Engine) failed(ctx context.Context, token, generator, p string, err error) {
	e.stats.failures.Add(1)
	e.metrics.generatorFailed(generator)
	e.logger.Warn("generator failed", "generator", generator, "path", p, "error", err)
	if e.journal != nil {
		rec := ir.FailureRecord{Token: token, Generator: generator, Path: p, Message: err.Error()}
		if jerr := e.journal.RecordFailure(ctx, rec); jerr != nil {
			e.logger.Warn("journal write failed", "error", jerr)
		}
	}
}

func (e *Engine) reduceAll(ctx context.Context, gens []*generator) error {
	var errs []error
	for _, g := range gens {
		reducer, ok := g.impl.(Reducer)
		if !ok || !g.takeDirty() {
			continue
		}
		if err := e.reduce(ctx, g, reducer, gens); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// reduce runs one generator's Reduce inside a Changeset keyed by the
// generator, so reduce output is chained, retained and stale-cleaned like
// any other effect.
func (e *Engine) reduce(ctx context.Context, g *generator, reducer Reducer, gens []*generator) error {
	key := reducePrefix + g.id
	prev := e.retainedFor(key)
	root := ir.Change{Path: key, Op: ir.OpUpdate, Exists: true, Generator: g.id}
	cs := NewChangeset(root, e.tokens.Generate())
	cs.next() // the root is not a file

	api := newAPI(e, cs, g)
	_, rerr := safeCall(func() (struct{}, error) {
		return struct{}{}, reducer.Reduce(ctx, api, g.snapshot())
	})
	api.release()
	if rerr != nil {
		e.failed(ctx, cs.token, g.id, key, rerr)
	}

	err := e.drain(ctx, cs, gens, e.newQuota())
	status := ir.StatusClosed
	switch {
	case err != nil:
		status = ir.StatusAborted
	case rerr == nil && prev != nil:
		e.removeStale(ctx, cs, prev, gens)
		err = e.drain(ctx, cs, gens, nil)
	}
	e.closeChangeset(ctx, cs, status)
	e.retain(key, cs)
	return err
}

func (e *Engine) newQuota() *QuotaEnforcer {
	if e.maxChain <= 0 {
		return nil
	}
	return NewQuotaEnforcer(e.maxChain)
}

func (e *Engine) closeChangeset(ctx context.Context, cs *Changeset, status string) {
	if dropped := cs.close(); dropped > 0 {
		e.logger.Warn("dropped pending changes", "token", cs.token, "count", dropped)
	}
	e.release(cs)
	if e.revisit != nil {
		e.revisit.Clear(cs.token)
	}
	e.metrics.changesetClosed(cs)

	rec := cs.record(e.clock.Next(), status)
	if e.journal != nil {
		if err := e.journal.RecordChangeset(ctx, rec); err != nil {
			e.logger.Warn("journal write failed", "token", cs.token, "error", err)
		}
	}
	e.logger.Debug("changeset closed",
		"token", cs.token,
		"root", rec.Root,
		"status", status,
		"steps", rec.Steps,
		"paths", len(rec.Paths),
	)
}

func (e *Engine) retainedFor(root string) *Changeset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retained[root]
}

func (e *Engine) retain(root string, cs *Changeset) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retained[root] = cs
}

func (e *Engine) forget(root string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.retained, root)
}

// reset drops every retained Changeset and generator result.
func (e *Engine) reset() {
	e.mu.Lock()
	e.retained = make(map[string]*Changeset)
	gens := e.gens
	e.mu.Unlock()
	for _, g := range gens {
		g.reset()
	}
}

// reached returns every path in a retained Changeset.
func (e *Engine) reached() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]bool)
	for _, cs := range e.retained {
		for _, p := range cs.Paths() {
			out[p] = true
		}
	}
	return out
}

func (e *Engine) claim(p string, cs *Changeset) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if owner, ok := e.claims[p]; ok && owner != cs.token {
		return &Error{
			Code:    ErrCodeWriteConflict,
			Message: fmt.Sprintf("already written by changeset %s", owner),
			Token:   cs.token,
			Path:    p,
		}
	}
	e.claims[p] = cs.token
	return nil
}

func (e *Engine) claimedByOther(p, token string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	owner, ok := e.claims[p]
	return ok && owner != token
}

func (e *Engine) release(cs *Changeset) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range cs.Paths() {
		if e.claims[p] == cs.token {
			delete(e.claims, p)
		}
	}
}

func (e *Engine) abs(p string) string {
	if e.root == "" {
		return p
	}
	return path.Join(e.root, p)
}

// owned reports whether p exists and carries an owned header.
func (e *Engine) owned(p string) bool {
	ann, err := e.annotations(p)
	return err == nil && ann.IsOwned()
}

func (e *Engine) annotations(p string) (ir.Annotations, error) {
	rel, err := ir.NormalizePath(p)
	if err != nil {
		return nil, err
	}
	acc, err := e.accessors.For(rel)
	if err != nil {
		return nil, &Error{Code: ErrCodeNoAccessor, Message: "no header syntax for file type", Path: rel, Err: err}
	}
	ann, err := acc.ReadAnnotations(e.fs, e.abs(rel))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return ann, err
}

func (e *Engine) read(p string) (string, error) {
	rel, err := ir.NormalizePath(p)
	if err != nil {
		return "", err
	}
	if acc, aerr := e.accessors.For(rel); aerr == nil {
		f, err := acc.Read(e.fs, e.abs(rel))
		if err != nil {
			return "", err
		}
		return f.Content, nil
	}
	data, err := util.ReadFile(e.fs, e.abs(rel))
	return string(data), err
}

// renderer is implemented by accessors that can render without writing,
// letting write skip files whose bytes would not change.
type renderer interface {
	Render(file ir.File) ([]byte, error)
}

// write is the single mutation path for generator output. It reports
// whether the file's bytes changed.
func (e *Engine) write(ctx context.Context, cs *Changeset, genID, source, p, content string, wo writeOptions) (bool, error) {
	dest, err := ir.NormalizePath(relDest(source, p))
	if err != nil {
		return false, err
	}
	acc, err := e.accessors.For(dest)
	if err != nil {
		return false, &Error{Code: ErrCodeNoAccessor, Message: "no header syntax for file type", Path: dest, Generator: genID, Err: err}
	}
	full := e.abs(dest)

	existing, rerr := util.ReadFile(e.fs, full)
	exists := rerr == nil
	if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		return false, rerr
	}
	if exists {
		ann, err := acc.ReadAnnotations(e.fs, full)
		if err != nil {
			return false, err
		}
		if !ann.IsOwned() {
			e.logger.Warn("refusing to overwrite unowned file", "path", dest, "generator", genID)
			return false, newOwnershipError(dest, genID)
		}
	}
	if err := e.claim(dest, cs); err != nil {
		return false, err
	}

	ann := ir.Owned(ir.Annotation{Key: ir.KeyGeneratedBy, Value: genID})
	if source != "" {
		ann.Set(ir.KeyGeneratedFrom, ir.RelativeRef(dest, source))
	}
	for _, a := range wo.annotations {
		ann.Set(a.Key, a.Value)
	}
	file := ir.File{
		Header:  &ir.FileHeader{Annotations: ann, Comment: wo.comment},
		Content: content,
	}

	changed := true
	if r, ok := acc.(renderer); ok && exists {
		data, err := r.Render(file)
		if err != nil {
			return false, err
		}
		changed = !bytes.Equal(data, existing)
	}
	if changed {
		if err := acc.Write(e.fs, full, file); err != nil {
			return false, err
		}
		e.stats.written.Add(1)
		e.metrics.fileWritten()
		e.logger.Debug("wrote", "path", dest, "generator", genID, "token", cs.token)
	}

	var mtime int64
	if fi, err := e.fs.Stat(full); err == nil {
		mtime = fi.ModTime().UnixMilli()
	}
	op := ir.OpUpdate
	if !exists {
		op = ir.OpAdd
	}
	err = cs.Add(ir.Change{
		Path:      dest,
		Op:        op,
		Exists:    true,
		IsNew:     !exists,
		ModTime:   mtime,
		Generator: genID,
	})
	return changed, err
}

// remove deletes p if it still carries an owned header and no other open
// Changeset holds it. When cs is non-nil the removal is folded into it.
func (e *Engine) remove(cs *Changeset, p string, gens []*generator) (bool, error) {
	if cs != nil && e.claimedByOther(p, cs.token) {
		return false, nil
	}
	if !e.owned(p) {
		return false, nil
	}
	if err := e.fs.Remove(e.abs(p)); err != nil {
		return false, err
	}
	e.stats.removed.Add(1)
	e.metrics.fileRemoved()
	e.logger.Info("removed", "path", p)

	for _, g := range gens {
		g.drop(p)
	}
	if cs != nil {
		return true, cs.Add(ir.Change{Path: p, Op: ir.OpRemove})
	}
	return true, nil
}

// stats accumulates counters across commands; Report is a delta of two
// snapshots.
type stats struct {
	written  atomic.Int64
	removed  atomic.Int64
	failures atomic.Int64
}

func (s *stats) snapshot() Report {
	return Report{
		Written:  int(s.written.Load()),
		Removed:  int(s.removed.Load()),
		Failures: int(s.failures.Load()),
	}
}
