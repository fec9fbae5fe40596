package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/macrome/internal/testutil"
)

// Render formats a result for golden comparison: the step log followed by
// every file in the final tree.
func Render(result *Result) string {
	var b strings.Builder
	b.WriteString("# steps\n")
	for _, ev := range result.Steps {
		fmt.Fprintf(&b, "%d %s", ev.Seq, ev.Op)
		if ev.Path != "" {
			fmt.Fprintf(&b, " %s", ev.Path)
		}
		if r := ev.Report; r != nil {
			fmt.Fprintf(&b, " roots=%d written=%d removed=%d failures=%d",
				r.Roots, r.Written, r.Removed, r.Failures)
		}
		b.WriteByte('\n')
		if ev.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", ev.Error)
		}
	}
	b.WriteString("# tree\n")
	b.WriteString(testutil.RenderTree(result.Tree))
	return b.String()
}

// RunWithGolden executes a scenario, fails t on any assertion error, and
// compares the rendered result against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(Render(result)))
}
