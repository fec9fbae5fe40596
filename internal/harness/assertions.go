package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/roach88/macrome/internal/header"
	"github.com/roach88/macrome/internal/store"
)

// AssertionContext is what assertions may inspect beyond the Result.
type AssertionContext struct {
	Ctx       context.Context
	FS        billy.Filesystem
	Store     *store.Store
	Accessors *header.Registry
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Files    []string // Final tree listing for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFinal tree:\n")
	for _, f := range e.Files {
		fmt.Fprintf(&buf, "  %s\n", f)
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i+1, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertExists:
		return assertExists(result, a)
	case AssertAbsent:
		return assertAbsent(result, a)
	case AssertContains:
		return assertContains(result, a)
	case AssertAnnotation:
		return assertAnnotation(result, a, actx)
	case AssertFailures:
		return assertFailures(result, a)
	case AssertChangesets:
		return assertChangesets(result, a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertExists(result *Result, a Assertion) error {
	if _, ok := result.Tree[a.Path]; ok {
		return nil
	}
	return &AssertionError{
		Type:     AssertExists,
		Expected: fmt.Sprintf("%s exists", a.Path),
		Actual:   "not found in tree",
		Files:    listing(result),
	}
}

func assertAbsent(result *Result, a Assertion) error {
	if _, ok := result.Tree[a.Path]; !ok {
		return nil
	}
	return &AssertionError{
		Type:     AssertAbsent,
		Expected: fmt.Sprintf("%s is absent", a.Path),
		Actual:   "found in tree",
		Files:    listing(result),
	}
}

func assertContains(result *Result, a Assertion) error {
	content, ok := result.Tree[a.Path]
	if !ok {
		return &AssertionError{
			Type:     AssertContains,
			Expected: fmt.Sprintf("%s contains %q", a.Path, a.Contains),
			Actual:   "file not found in tree",
			Files:    listing(result),
		}
	}
	if strings.Contains(content, a.Contains) {
		return nil
	}
	return &AssertionError{
		Type:     AssertContains,
		Expected: fmt.Sprintf("%s contains %q", a.Path, a.Contains),
		Actual:   fmt.Sprintf("%q", content),
		Files:    listing(result),
	}
}

func assertAnnotation(result *Result, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.FS == nil || actx.Accessors == nil {
		return fmt.Errorf("annotation assertion requires a filesystem and accessors")
	}
	acc, err := actx.Accessors.For(a.Path)
	if err != nil {
		return err
	}
	annotations, err := acc.ReadAnnotations(actx.FS, a.Path)
	if err != nil {
		return &AssertionError{
			Type:     AssertAnnotation,
			Expected: fmt.Sprintf("%s has @%s", a.Path, a.Key),
			Actual:   err.Error(),
			Files:    listing(result),
		}
	}
	value, ok := annotations.Get(a.Key)
	switch {
	case !ok:
		return &AssertionError{
			Type:     AssertAnnotation,
			Expected: fmt.Sprintf("%s has @%s", a.Path, a.Key),
			Actual:   fmt.Sprintf("keys %v", annotations.Keys()),
			Files:    listing(result),
		}
	case a.Value != "" && value != a.Value:
		return &AssertionError{
			Type:     AssertAnnotation,
			Expected: fmt.Sprintf("@%s %s", a.Key, a.Value),
			Actual:   fmt.Sprintf("@%s %s", a.Key, value),
			Files:    listing(result),
		}
	}
	return nil
}

func assertFailures(result *Result, a Assertion) error {
	if len(result.Failures) == *a.Count {
		return nil
	}
	actual := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		actual = append(actual, fmt.Sprintf("%s on %s", f.Generator, f.Path))
	}
	return &AssertionError{
		Type:     AssertFailures,
		Expected: fmt.Sprintf("%d failures", *a.Count),
		Actual:   fmt.Sprintf("%d failures %v", len(result.Failures), actual),
		Files:    listing(result),
	}
}

func assertChangesets(result *Result, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("changesets assertion requires a journal")
	}
	recs, err := actx.Store.Trace(actx.Ctx, a.Path)
	if err != nil {
		return fmt.Errorf("failed to trace %s: %w", a.Path, err)
	}
	if len(recs) == *a.Count {
		return nil
	}
	tokens := make([]string, 0, len(recs))
	for _, r := range recs {
		tokens = append(tokens, fmt.Sprintf("%s(%s %s)", r.Token, r.Op, r.Root))
	}
	return &AssertionError{
		Type:     AssertChangesets,
		Expected: fmt.Sprintf("%d changesets reach %s", *a.Count, a.Path),
		Actual:   fmt.Sprintf("%d: %s", len(recs), strings.Join(tokens, ", ")),
		Files:    listing(result),
	}
}

func listing(result *Result) []string {
	files := make([]string, 0, len(result.Tree))
	for p := range result.Tree {
		files = append(files, p)
	}
	sort.Strings(files)
	return files
}
