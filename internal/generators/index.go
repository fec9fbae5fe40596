package generators

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/roach88/macrome/internal/engine"
	"github.com/roach88/macrome/internal/ir"
	"github.com/roach88/macrome/internal/match"
)

// IndexOptions configures the index generator.
type IndexOptions struct {
	Filter `mapstructure:",squash"`
	File   string `mapstructure:"file"`
}

// Index re-exports every matched module of a directory from one index file
// in that directory.
type Index struct {
	m    *match.Matchable
	file string
}

// NewIndex builds an index generator. The index file itself is always
// excluded.
func NewIndex(opts IndexOptions) (*Index, error) {
	if opts.File == "" {
		opts.File = "index.js"
	}
	if strings.Contains(opts.File, "/") {
		return nil, fmt.Errorf("file %q must be a base name", opts.File)
	}
	m, err := opts.matchable(match.One("**/*.js"), "**/"+opts.File)
	if err != nil {
		return nil, err
	}
	return &Index{m: m, file: opts.File}, nil
}

func newIndexFactory(options map[string]any) (engine.Generator, error) {
	var opts IndexOptions
	if err := Decode(options, &opts); err != nil {
		return nil, err
	}
	return NewIndex(opts)
}

func (x *Index) Matchable() *match.Matchable { return x.m }

// Map implements engine.Mapper. The result is the source path.
func (x *Index) Map(ctx context.Context, api *engine.MapAPI, change ir.Change) (any, error) {
	return change.Path, nil
}

// Reduce implements engine.Reducer, writing one index per directory.
func (x *Index) Reduce(ctx context.Context, api *engine.API, results map[string]engine.MapResult) error {
	dirs := make(map[string][]string)
	for p, r := range results {
		if r.Err != nil {
			continue
		}
		dirs[path.Dir(p)] = append(dirs[path.Dir(p)], path.Base(p))
	}
	keys := make([]string, 0, len(dirs))
	for d := range dirs {
		keys = append(keys, d)
	}
	sort.Strings(keys)

	for _, d := range keys {
		names := dirs[d]
		sort.Strings(names)
		var b strings.Builder
		for _, n := range names {
			fmt.Fprintf(&b, "export * from './%s';\n", n)
		}
		if err := api.Write(ctx, path.Join(d, x.file), b.String()); err != nil {
			return err
		}
	}
	return nil
}
