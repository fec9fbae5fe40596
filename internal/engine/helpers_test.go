package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"

	"github.com/roach88/macrome/internal/header"
	"github.com/roach88/macrome/internal/ir"
	"github.com/roach88/macrome/internal/match"
)

// seqTokens hands out cs-1, cs-2, ... without running out.
type seqTokens struct{ n atomic.Int64 }

func (s *seqTokens) Generate() string {
	return fmt.Sprintf("cs-%d", s.n.Add(1))
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, billy.Filesystem) {
	t.Helper()
	fs := memfs.New()
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTokenGenerator(&seqTokens{}),
		// memfs is not safe for concurrent writers.
		WithConcurrency(1),
	}
	return New(fs, "", append(base, opts...)...), fs
}

func register(t *testing.T, e *Engine, id string, g Generator) {
	t.Helper()
	require.NoError(t, e.Register(GeneratorRef{Path: id}, g))
}

func writeFile(t *testing.T, fs billy.Filesystem, p, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, p, []byte(content), 0o644))
}

func writeOwned(t *testing.T, fs billy.Filesystem, p, content string) {
	t.Helper()
	file := ir.File{Header: &ir.FileHeader{Annotations: ir.Owned()}, Content: content}
	require.NoError(t, header.CFamily().Write(fs, p, file))
}

func readFile(t *testing.T, fs billy.Filesystem, p string) string {
	t.Helper()
	data, err := util.ReadFile(fs, p)
	require.NoError(t, err)
	return string(data)
}

func exists(fs billy.Filesystem, p string) bool {
	_, err := fs.Stat(p)
	return err == nil
}

// snapshot returns every file and its bytes.
func snapshot(t *testing.T, fs billy.Filesystem) map[string]string {
	t.Helper()
	out := make(map[string]string)
	var walk func(dir string)
	walk = func(dir string) {
		entries, err := fs.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			p := path.Join(dir, e.Name())
			if e.IsDir() {
				walk(p)
				continue
			}
			out[p] = readFile(t, fs, p)
		}
	}
	walk(".")
	return out
}

// copyGen copies each matched source to dest(source).
type copyGen struct {
	m    *match.Matchable
	dest func(string) string
}

func (g *copyGen) Matchable() *match.Matchable { return g.m }

func (g *copyGen) DestPath(p string) string { return g.dest(p) }

func (g *copyGen) Map(ctx context.Context, api *MapAPI, change ir.Change) (any, error) {
	content, err := api.Read(ctx, change.Path)
	if err != nil {
		return nil, err
	}
	dest := g.DestPath(change.Path)
	return dest, api.Write(ctx, dest, content)
}

func generatedDest(p string) string {
	return path.Join(path.Dir(p), "generated-"+path.Base(p))
}

// mapGen runs fn for every matched change.
type mapGen struct {
	m     *match.Matchable
	fn    func(ctx context.Context, api *MapAPI, change ir.Change) (any, error)
	calls atomic.Int64
}

func (g *mapGen) Matchable() *match.Matchable { return g.m }

func (g *mapGen) Map(ctx context.Context, api *MapAPI, change ir.Change) (any, error) {
	g.calls.Add(1)
	return g.fn(ctx, api, change)
}

// indexGen maps to the base name and reduces into dir/index.js.
type indexGen struct {
	m       *match.Matchable
	mu      sync.Mutex
	reduces [][]string
}

func (g *indexGen) Matchable() *match.Matchable { return g.m }

func (g *indexGen) Map(ctx context.Context, api *MapAPI, change ir.Change) (any, error) {
	return path.Base(change.Path), nil
}

func (g *indexGen) Reduce(ctx context.Context, api *API, results map[string]MapResult) error {
	var names []string
	for _, r := range results {
		names = append(names, r.Result.(string))
	}
	sort.Strings(names)

	g.mu.Lock()
	g.reduces = append(g.reduces, names)
	g.mu.Unlock()

	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "export * from './%s';\n", n)
	}
	return api.Write(ctx, "lib/index.js", b.String())
}

func (g *indexGen) reduceCalls() [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]string(nil), g.reduces...)
}

// fakeVCS returns queued answers in order.
type fakeVCS struct {
	answers []bool
	calls   int
}

func (v *fakeVCS) IsDirty(ctx context.Context, root string) (bool, error) {
	a := v.answers[v.calls]
	v.calls++
	return a, nil
}

// fakeJournal records everything in memory.
type fakeJournal struct {
	mu         sync.Mutex
	changesets []ir.ChangesetRecord
	failures   []ir.FailureRecord
}

func (j *fakeJournal) RecordChangeset(ctx context.Context, rec ir.ChangesetRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.changesets = append(j.changesets, rec)
	return nil
}

func (j *fakeJournal) RecordFailure(ctx context.Context, rec ir.FailureRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failures = append(j.failures, rec)
	return nil
}

// fakeSource feeds batches from a channel.
type fakeSource struct {
	events       chan []SourceEvent
	req          SubscribeRequest
	unsubscribed atomic.Bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan []SourceEvent)}
}

func (s *fakeSource) Watch(ctx context.Context, root string) error { return nil }

func (s *fakeSource) Clock(ctx context.Context) (string, error) { return "c:1", nil }

func (s *fakeSource) Subscribe(ctx context.Context, req SubscribeRequest) (Subscription, error) {
	s.req = req
	return s, nil
}

func (s *fakeSource) Events() <-chan []SourceEvent { return s.events }

// flush returns once every previously sent batch has been processed: the
// watch loop only receives again after the last batch is done.
func (s *fakeSource) flush() { s.events <- nil }

func (s *fakeSource) Err() error { return nil }

func (s *fakeSource) Unsubscribe() error {
	s.unsubscribed.Store(true)
	return nil
}

func newMemFS() billy.Filesystem { return memfs.New() }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
