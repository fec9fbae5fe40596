package generators

import (
	"context"
	"fmt"
	"path"

	"github.com/roach88/macrome/internal/engine"
	"github.com/roach88/macrome/internal/header"
	"github.com/roach88/macrome/internal/ir"
	"github.com/roach88/macrome/internal/match"
)

// DefaultCopyDest is where copy writes when no dest is configured.
const DefaultCopyDest = "{dir}/generated-{base}"

// CopyOptions configures the copy generator.
type CopyOptions struct {
	Filter `mapstructure:",squash"`
	Dest   string `mapstructure:"dest"`

	// Format gofumpt-formats destinations ending in .go.
	Format bool `mapstructure:"format"`
}

// Copy writes each matched source verbatim to a templated destination.
type Copy struct {
	m      *match.Matchable
	dest   string
	format bool
}

// NewCopy builds a copy generator.
func NewCopy(opts CopyOptions) (*Copy, error) {
	if opts.Dest == "" {
		opts.Dest = DefaultCopyDest
	}
	if !hasPlaceholder(opts.Dest) {
		return nil, fmt.Errorf("dest %q must contain {base} or {name}", opts.Dest)
	}
	m, err := opts.matchable(nil)
	if err != nil {
		return nil, err
	}
	return &Copy{m: m, dest: opts.Dest, format: opts.Format}, nil
}

func newCopyFactory(options map[string]any) (engine.Generator, error) {
	var opts CopyOptions
	if err := Decode(options, &opts); err != nil {
		return nil, err
	}
	return NewCopy(opts)
}

func (c *Copy) Matchable() *match.Matchable { return c.m }

// DestPath implements engine.DestPather.
func (c *Copy) DestPath(source string) string {
	return expand(c.dest, source)
}

// Map implements engine.Mapper. The result is the destination path.
func (c *Copy) Map(ctx context.Context, api *engine.MapAPI, change ir.Change) (any, error) {
	content, err := api.Read(ctx, change.Path)
	if err != nil {
		return nil, err
	}
	dest := c.DestPath(change.Path)
	if dest == change.Path {
		return nil, fmt.Errorf("dest of %s is the source itself", change.Path)
	}
	var opts []engine.WriteOption
	if c.format && path.Ext(dest) == ".go" {
		opts = append(opts, engine.WithFormat(header.FormatGo))
	}
	return dest, api.Write(ctx, dest, content, opts...)
}
