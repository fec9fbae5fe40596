package generators

import (
	"path"
	"strings"

	"github.com/roach88/macrome/internal/match"
)

// Filter is the include/exclude part every built-in generator accepts.
type Filter struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// matchable builds the generator's interest set. def is used when no
// include was configured; extra exclusions are always added.
func (f Filter) matchable(def []string, extra ...string) (*match.Matchable, error) {
	m := &match.Matchable{Include: f.Include}
	if m.Include == nil {
		m.Include = def
	}
	if f.Exclude != nil || len(extra) > 0 {
		m.Exclude = append(append(match.Expression{}, f.Exclude...), extra...)
	}
	if _, err := match.Compile(m); err != nil {
		return nil, err
	}
	return m, nil
}

// expand fills a destination template from source:
// {dir} the directory, {base} the file name, {name} the file name without
// extension, {ext} the extension including the dot.
func expand(tmpl, source string) string {
	base := path.Base(source)
	ext := path.Ext(base)
	r := strings.NewReplacer(
		"{dir}", path.Dir(source),
		"{base}", base,
		"{name}", strings.TrimSuffix(base, ext),
		"{ext}", ext,
	)
	return path.Clean(r.Replace(tmpl))
}

func hasPlaceholder(tmpl string) bool {
	for _, p := range []string{"{base}", "{name}"} {
		if strings.Contains(tmpl, p) {
			return true
		}
	}
	return false
}
