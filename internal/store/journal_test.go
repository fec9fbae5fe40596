package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/macrome/internal/engine"
	"github.com/roach88/macrome/internal/ir"
	"github.com/roach88/macrome/internal/match"
)

func TestRecordChangeset_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := createTestChangeset("cs-1", "lib/a.js", 1, "lib/generated-a.js", "lib/index.js")
	require.NoError(t, s.RecordChangeset(ctx, rec))

	got, err := s.ReadChangeset(ctx, "cs-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRecordChangeset_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := createTestChangeset("cs-1", "a.js", 1, "b.js")
	require.NoError(t, s.RecordChangeset(ctx, rec))

	dup := createTestChangeset("cs-1", "other.js", 9, "c.js", "d.js")
	require.NoError(t, s.RecordChangeset(ctx, dup))

	got, err := s.ReadChangeset(ctx, "cs-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got, "first write wins")
}

func TestReadChangeset_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadChangeset(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTrace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordChangeset(ctx, createTestChangeset("cs-b", "b.js", 2, "out.js")))
	require.NoError(t, s.RecordChangeset(ctx, createTestChangeset("cs-a", "a.js", 1, "out.js", "mid.js")))
	require.NoError(t, s.RecordChangeset(ctx, createTestChangeset("cs-c", "c.js", 3)))

	recs, err := s.Trace(ctx, "out.js")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "cs-a", recs[0].Token, "ordered by seq")
	assert.Equal(t, []string{"a.js", "out.js", "mid.js"}, recs[0].Paths)
	assert.Equal(t, "cs-b", recs[1].Token)

	recs, err = s.Trace(ctx, "missing.js")
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestFailures(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	f1 := ir.FailureRecord{Token: "cs-1", Generator: "copy", Path: "a.js", Message: "boom"}
	f2 := ir.FailureRecord{Token: "cs-1", Generator: "index", Path: "b.js", Message: "bang"}
	require.NoError(t, s.RecordFailure(ctx, f1))
	require.NoError(t, s.RecordFailure(ctx, f2))
	require.NoError(t, s.RecordFailure(ctx, ir.FailureRecord{Token: "cs-2", Generator: "copy", Path: "c.js", Message: "x"}))

	got, err := s.Failures(ctx, "cs-1")
	require.NoError(t, err)
	assert.Equal(t, []ir.FailureRecord{f1, f2}, got)
}

// failing always errors on Map.
type failing struct{}

func (failing) Matchable() *match.Matchable { return &match.Matchable{Include: match.One("bad.js")} }

func (failing) Map(context.Context, *engine.MapAPI, ir.Change) (any, error) {
	return nil, errors.New("cannot map")
}

// copier writes out.js from any matched source.
type copier struct{}

func (copier) Matchable() *match.Matchable { return &match.Matchable{Include: match.One("src.js")} }

func (copier) Map(ctx context.Context, api *engine.MapAPI, change ir.Change) (any, error) {
	content, err := api.Read(ctx, change.Path)
	if err != nil {
		return nil, err
	}
	return nil, api.Write(ctx, "out.js", content)
}

func TestStore_EngineJournal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "src.js", []byte("x"), 0o644))
	require.NoError(t, util.WriteFile(fs, "bad.js", []byte("y"), 0o644))

	e := engine.New(fs, "",
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithJournal(s),
		engine.WithConcurrency(1),
		engine.WithTokenGenerator(engine.NewFixedGenerator("cs-1", "cs-2")),
	)
	require.NoError(t, e.Register(engine.GeneratorRef{Path: "copy"}, copier{}))
	require.NoError(t, e.Register(engine.GeneratorRef{Path: "fail"}, failing{}))

	_, err := e.Build(ctx)
	require.NoError(t, err)

	recs, err := s.Trace(ctx, "out.js")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "src.js", recs[0].Root)
	assert.Equal(t, ir.StatusClosed, recs[0].Status)
	assert.Equal(t, []string{"src.js", "out.js"}, recs[0].Paths)

	bad, err := s.Trace(ctx, "bad.js")
	require.NoError(t, err)
	require.Len(t, bad, 1)
	failures, err := s.Failures(ctx, bad[0].Token)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "fail", failures[0].Generator)
	assert.Equal(t, "bad.js", failures[0].Path)
	assert.Contains(t, failures[0].Message, "cannot map")
}

func TestLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, s.RecordChangeset(ctx, createTestChangeset("cs-b", "b.js", 7)))
	require.NoError(t, s.RecordChangeset(ctx, createTestChangeset("cs-a", "a.js", 3)))

	seq, err = s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}

func TestStore_JournalAcrossRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "src.js", []byte("x"), 0o644))

	run := func(token string, fn func(*engine.Engine) error) {
		s, err := Open(path)
		require.NoError(t, err)
		defer s.Close()
		last, err := s.LastSeq(ctx)
		require.NoError(t, err)

		e := engine.New(fs, "",
			engine.WithLogger(slog.New(slog.DiscardHandler)),
			engine.WithJournal(s),
			engine.WithConcurrency(1),
			engine.WithClock(engine.NewClockAt(last)),
			engine.WithTokenGenerator(engine.NewFixedGenerator(token)),
		)
		require.NoError(t, e.Register(engine.GeneratorRef{Path: "copy"}, copier{}))
		require.NoError(t, fn(e))
	}

	run("run-1", func(e *engine.Engine) error {
		_, err := e.Build(ctx)
		return err
	})
	run("run-2", func(e *engine.Engine) error {
		return e.ProcessChanges(ctx, []ir.Change{ir.ChangeFromEvent("src.js", true, false, 0)})
	})

	s := createTestStoreAt(t, path)
	recs, err := s.Trace(ctx, "out.js")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "run-1", recs[0].Token)
	assert.Equal(t, "run-2", recs[1].Token)
	assert.Less(t, recs[0].Seq, recs[1].Seq)
}
