package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/roach88/macrome/internal/engine"
	"github.com/roach88/macrome/internal/generators"
	"github.com/roach88/macrome/internal/header"
	"github.com/roach88/macrome/internal/ir"
	"github.com/roach88/macrome/internal/store"
	"github.com/roach88/macrome/internal/testutil"
)

// Harness drives one scenario against a real engine over an in-memory tree.
type Harness struct {
	fs      billy.Filesystem
	engine  *engine.Engine
	journal *recorder
}

// recorder journals into the store and keeps failures for assertions.
type recorder struct {
	*store.Store

	mu       sync.Mutex
	failures []ir.FailureRecord
}

func (r *recorder) RecordFailure(ctx context.Context, rec ir.FailureRecord) error {
	r.mu.Lock()
	r.failures = append(r.failures, rec)
	r.mu.Unlock()
	return r.Store.RecordFailure(ctx, rec)
}

func (r *recorder) recorded() []ir.FailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.FailureRecord(nil), r.failures...)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory tree and database. Changesets are
// processed one at a time and tokens are issued sequentially, so the same
// scenario always produces the same result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	fs, err := testutil.NewTree(scenario.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to seed tree: %w", err)
	}

	h := &Harness{fs: fs, journal: &recorder{Store: st}}
	opts := []engine.Option{
		engine.WithLogger(testutil.DiscardLogger()),
		engine.WithLoader(generators.NewRegistry()),
		engine.WithGenerators(scenario.Generators...),
		engine.WithExclude(scenario.Exclude...),
		engine.WithMaxChainLength(scenario.MaxChainLength),
		// memfs is not safe for concurrent writers.
		engine.WithConcurrency(1),
		engine.WithTokenGenerator(testutil.NewSequentialTokens("")),
		engine.WithJournal(h.journal),
	}
	if scenario.RevisitGuard {
		opts = append(opts, engine.WithRevisitGuard())
	}
	h.engine = engine.New(fs, "", opts...)
	defer h.engine.Close()

	ctx := context.Background()
	if err := h.engine.LoadGenerators(ctx); err != nil {
		return nil, fmt.Errorf("failed to load generators: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		ev.Seq = i + 1
		result.AddStep(ev)
	}

	result.Tree, err = testutil.Snapshot(fs)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot tree: %w", err)
	}
	result.Failures = h.journal.recorded()

	actx := &AssertionContext{
		Ctx:       ctx,
		FS:        fs,
		Store:     st,
		Accessors: header.NewRegistry(),
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// execute runs one step. Engine errors are recorded on the event; only
// failures to change the tree abort the scenario.
func (h *Harness) execute(ctx context.Context, step Step) (StepEvent, error) {
	ev := StepEvent{Op: step.Op, Path: step.Path}

	var err error
	switch step.Op {
	case OpBuild:
		ev.Report, err = h.engine.Build(ctx)
	case OpClean:
		ev.Report, err = h.engine.Clean(ctx)
	case OpWrite:
		_, statErr := h.fs.Stat(step.Path)
		if werr := util.WriteFile(h.fs, step.Path, []byte(step.Content), 0o644); werr != nil {
			return ev, werr
		}
		change := ir.ChangeFromEvent(step.Path, true, statErr != nil, 0)
		err = h.engine.ProcessChanges(ctx, []ir.Change{change})
	case OpRemove:
		if rerr := h.fs.Remove(step.Path); rerr != nil {
			return ev, rerr
		}
		change := ir.ChangeFromEvent(step.Path, false, false, 0)
		err = h.engine.ProcessChanges(ctx, []ir.Change{change})
	default:
		return ev, fmt.Errorf("unknown op %q", step.Op)
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev, nil
}
