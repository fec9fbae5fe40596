package engine

import (
	"context"
	"errors"

	"github.com/roach88/macrome/internal/ir"
	"github.com/roach88/macrome/internal/match"
	"github.com/roach88/macrome/internal/tree"
)

// Report summarises one command run.
type Report struct {
	Roots    int `json:"roots"`
	Written  int `json:"written"`
	Removed  int `json:"removed"`
	Failures int `json:"failures"`
}

func (r Report) sub(before Report) Report {
	return Report{
		Roots:    r.Roots - before.Roots,
		Written:  r.Written - before.Written,
		Removed:  r.Removed - before.Removed,
		Failures: r.Failures - before.Failures,
	}
}

// Excludes returns the patterns pruned from traversal and subscriptions.
func (e *Engine) Excludes() []string {
	out := append([]string(nil), match.AlwaysExcluded...)
	return append(out, e.exclude...)
}

func (e *Engine) walk() ([]string, error) {
	m, err := match.Excluder(e.exclude...)
	if err != nil {
		return nil, err
	}
	return tree.Walk(e.fs, e.root, m)
}

// Build enumerates the tree, feeds every source some generator is
// interested in through the causal loop as an ADD, then deletes owned
// files that were present before the run and not reached by it.
func (e *Engine) Build(ctx context.Context) (*Report, error) {
	before := e.stats.snapshot()

	paths, err := e.walk()
	if err != nil {
		return nil, err
	}
	gens := e.generators()
	e.reset()

	var (
		roots []ir.Change
		owned []string
	)
	for _, p := range paths {
		if e.owned(p) {
			owned = append(owned, p)
			continue
		}
		if !anyInterested(gens, p) {
			continue
		}
		c := ir.Change{Path: p, Op: ir.OpAdd, Exists: true, IsNew: true}
		if fi, err := e.fs.Stat(e.abs(p)); err == nil {
			c.ModTime = fi.ModTime().UnixMilli()
		}
		roots = append(roots, c)
	}
	e.logger.Info("build started", "files", len(paths), "roots", len(roots), "generated", len(owned))

	procErr := e.ProcessChanges(ctx, roots)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reached := e.reached()
	for _, p := range owned {
		if reached[p] {
			continue
		}
		if _, err := e.remove(nil, p, gens); err != nil {
			e.logger.Warn("removing stale output failed", "path", p, "error", err)
		}
	}

	r := e.stats.snapshot().sub(before)
	r.Roots = len(roots)
	e.logger.Info("build finished", "written", r.Written, "removed", r.Removed, "failures", r.Failures)
	return &r, procErr
}

// Clean deletes every file carrying an owned header, regardless of which
// generator wrote it, and forgets all retained state.
func (e *Engine) Clean(ctx context.Context) (*Report, error) {
	before := e.stats.snapshot()

	paths, err := e.walk()
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := e.remove(nil, p, nil); err != nil {
			errs = append(errs, err)
		}
	}
	e.reset()

	r := e.stats.snapshot().sub(before)
	e.logger.Info("clean finished", "removed", r.Removed)
	return &r, errors.Join(errs...)
}

// Check refuses to run on a dirty tree, then cleans and builds and reports
// whether the tree is dirty afterwards. A dirty result means generated
// output was stale or not checked in.
func (e *Engine) Check(ctx context.Context, vcs VCS) (bool, error) {
	dirty, err := vcs.IsDirty(ctx, e.root)
	if err != nil {
		return false, err
	}
	if dirty {
		return false, &Error{
			Code:    ErrCodeDirtyTree,
			Message: "working tree has uncommitted changes; commit or stash them first",
		}
	}
	if _, err := e.Clean(ctx); err != nil {
		return false, err
	}
	r, err := e.Build(ctx)
	if err != nil {
		return false, err
	}
	dirty, err = vcs.IsDirty(ctx, e.root)
	if err != nil {
		return false, err
	}
	if r.Failures > 0 && !dirty {
		e.logger.Warn("generators failed but the tree is clean", "failures", r.Failures)
	}
	return dirty, nil
}

// Watch takes a clock token from src, runs one Build, then feeds every
// batch observed since that token through the causal loop until ctx is
// cancelled. Edits made while the initial Build runs are therefore still
// reported. A batch already being processed when ctx is cancelled runs to
// completion before Watch unsubscribes.
func (e *Engine) Watch(ctx context.Context, src ChangeSource) error {
	if err := src.Watch(ctx, e.root); err != nil {
		return &Error{Code: ErrCodeChangeSource, Message: "watch negotiation failed", Err: err}
	}
	since, err := src.Clock(ctx)
	if err != nil {
		return &Error{Code: ErrCodeChangeSource, Message: "clock query failed", Err: err}
	}

	if _, err := e.Build(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		e.logger.Warn("initial build reported errors", "error", err)
	}

	sub, err := src.Subscribe(ctx, SubscribeRequest{
		Root:    e.root,
		Since:   since,
		Exclude: e.Excludes(),
		Fields:  DefaultFields,
	})
	if err != nil {
		return &Error{Code: ErrCodeChangeSource, Message: "subscribe failed", Err: err}
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			e.logger.Warn("unsubscribe failed", "error", err)
		}
	}()
	e.logger.Info("watching", "root", e.root, "since", since)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("watch stopped")
			return nil
		case batch, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					return &Error{Code: ErrCodeChangeSource, Message: "subscription ended", Err: err}
				}
				return nil
			}
			e.handleBatch(context.WithoutCancel(ctx), batch)
		}
	}
}

func (e *Engine) handleBatch(ctx context.Context, batch []SourceEvent) {
	changes := make([]ir.Change, 0, len(batch))
	reload := false
	for _, ev := range batch {
		if e.reload != nil && ev.Name == e.reloadPath {
			reload = true
			continue
		}
		changes = append(changes, ev.Change())
	}

	if reload {
		if err := e.reloadGenerators(ctx); err != nil {
			e.logger.Error("reload failed; keeping previous generators", "error", err)
		} else if _, err := e.Build(ctx); err != nil {
			e.logger.Warn("rebuild reported errors", "error", err)
		}
		return
	}

	e.logger.Debug("processing batch", "changes", len(changes))
	if err := e.ProcessChanges(ctx, changes); err != nil {
		e.logger.Warn("batch reported errors", "error", err)
	}
}

// reloadGenerators re-reads generator refs and replaces every handle.
func (e *Engine) reloadGenerators(ctx context.Context) error {
	refs, err := e.reload(ctx)
	if err != nil {
		return err
	}
	prev := e.refs
	e.refs = refs
	if err := e.LoadGenerators(ctx); err != nil {
		e.refs = prev
		return err
	}
	e.logger.Info("generators reloaded", "count", len(refs), "matchers", e.cache.Len())
	return nil
}
