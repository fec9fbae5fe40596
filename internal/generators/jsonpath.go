package generators

import (
	"context"
	"fmt"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/roach88/macrome/internal/engine"
	"github.com/roach88/macrome/internal/ir"
	"github.com/roach88/macrome/internal/match"
)

// JSONPathOptions configures the jsonpath generator.
type JSONPathOptions struct {
	Filter `mapstructure:",squash"`
	Query  string `mapstructure:"query"`
	Dest   string `mapstructure:"dest"`
}

// JSONPath selects values from JSON sources and writes them as an ES
// module default export.
type JSONPath struct {
	m     *match.Matchable
	query jp.Expr
	dest  string
}

// NewJSONPath builds a jsonpath generator. The query defaults to "$".
func NewJSONPath(opts JSONPathOptions) (*JSONPath, error) {
	if opts.Query == "" {
		opts.Query = "$"
	}
	if opts.Dest == "" {
		opts.Dest = "{dir}/{name}.js"
	}
	if !hasPlaceholder(opts.Dest) {
		return nil, fmt.Errorf("dest %q must contain {base} or {name}", opts.Dest)
	}
	x, err := jp.ParseString(opts.Query)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", opts.Query, err)
	}
	m, err := opts.matchable(match.One("**/*.json"))
	if err != nil {
		return nil, err
	}
	return &JSONPath{m: m, query: x, dest: opts.Dest}, nil
}

func newJSONPathFactory(options map[string]any) (engine.Generator, error) {
	var opts JSONPathOptions
	if err := Decode(options, &opts); err != nil {
		return nil, err
	}
	return NewJSONPath(opts)
}

func (j *JSONPath) Matchable() *match.Matchable { return j.m }

// DestPath implements engine.DestPather.
func (j *JSONPath) DestPath(source string) string {
	return expand(j.dest, source)
}

// Map implements engine.Mapper. Unparseable JSON produces an error
// artifact at the destination.
func (j *JSONPath) Map(ctx context.Context, api *engine.MapAPI, change ir.Change) (any, error) {
	src, err := api.Read(ctx, change.Path)
	if err != nil {
		return nil, err
	}
	dest := j.DestPath(change.Path)
	err = api.Generate(ctx, dest, func(context.Context) (string, error) {
		return j.render(src)
	})
	return dest, err
}

func (j *JSONPath) render(src string) (string, error) {
	data, err := oj.ParseString(src)
	if err != nil {
		return "", err
	}
	var value any
	switch results := j.query.Get(data); len(results) {
	case 0:
		return "", fmt.Errorf("jsonpath %s matched nothing", j.query)
	case 1:
		value = results[0]
	default:
		value = results
	}
	return "export default " + oj.JSON(value, &ojg.Options{Sort: true, Indent: 2}) + ";\n", nil
}
