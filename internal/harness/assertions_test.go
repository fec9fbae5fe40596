package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/macrome/internal/header"
	"github.com/roach88/macrome/internal/ir"
	"github.com/roach88/macrome/internal/store"
	"github.com/roach88/macrome/internal/testutil"
)

func treeResult(files map[string]string) *Result {
	r := NewResult()
	r.Tree = files
	return r
}

func TestAssertExistsAbsent(t *testing.T) {
	result := treeResult(map[string]string{"lib/a.js": "a"})

	assert.NoError(t, evaluate(result, Assertion{Type: AssertExists, Path: "lib/a.js"}, nil))
	assert.NoError(t, evaluate(result, Assertion{Type: AssertAbsent, Path: "lib/b.js"}, nil))

	err := evaluate(result, Assertion{Type: AssertExists, Path: "lib/b.js"}, nil)
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertExists, ae.Type)
	assert.Equal(t, []string{"lib/a.js"}, ae.Files)

	err = evaluate(result, Assertion{Type: AssertAbsent, Path: "lib/a.js"}, nil)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "found in tree", ae.Actual)
}

func TestAssertContains(t *testing.T) {
	result := treeResult(map[string]string{"a.js": "export * from './b.js';\n"})

	assert.NoError(t, evaluate(result, Assertion{Type: AssertContains, Path: "a.js", Contains: "./b.js"}, nil))

	err := evaluate(result, Assertion{Type: AssertContains, Path: "a.js", Contains: "./c.js"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `a.js contains "./c.js"`)

	err = evaluate(result, Assertion{Type: AssertContains, Path: "missing.js", Contains: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found in tree")
}

func TestAssertAnnotation(t *testing.T) {
	fs, err := testutil.NewTree(map[string]string{
		"out.js":  "/* @macrome\n * @generated-by copy\n * @generated-from ./in.js\n */\n\nx",
		"hand.js": "x",
	})
	require.NoError(t, err)
	actx := &AssertionContext{Ctx: context.Background(), FS: fs, Accessors: header.NewRegistry()}
	result := treeResult(map[string]string{})

	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{"key present", Assertion{Path: "out.js", Key: ir.KeyGeneratedBy}, ""},
		{"value matches", Assertion{Path: "out.js", Key: ir.KeyGeneratedFrom, Value: "./in.js"}, ""},
		{"value differs", Assertion{Path: "out.js", Key: ir.KeyGeneratedFrom, Value: "./other.js"}, "@generated-from ./in.js"},
		{"key missing", Assertion{Path: "out.js", Key: ir.KeyGenerateFailed}, "has @generate-failed"},
		{"no header", Assertion{Path: "hand.js", Key: ir.KeyGeneratedBy}, "has @generated-by"},
		{"no accessor", Assertion{Path: "data.bin", Key: ir.KeyGeneratedBy}, "data.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.a.Type = AssertAnnotation
			err := evaluate(result, tt.a, actx)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, evaluate(result, Assertion{Type: AssertAnnotation, Path: "out.js", Key: "k"}, nil))
}

func TestAssertFailures(t *testing.T) {
	result := NewResult()
	result.Failures = []ir.FailureRecord{{Token: "cs-1", Generator: "jsonpath", Path: "a.json", Message: "bad"}}

	assert.NoError(t, evaluate(result, Assertion{Type: AssertFailures, Count: count(1)}, nil))

	err := evaluate(result, Assertion{Type: AssertFailures, Count: count(0)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jsonpath on a.json")
}

func TestAssertChangesets(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.RecordChangeset(ctx, ir.ChangesetRecord{
		Token: "cs-1", Seq: 1, Root: "a.js", Op: ir.OpAdd, Status: ir.StatusClosed, Steps: 2,
		Paths: []string{"a.js", "generated-a.js"},
	}))
	actx := &AssertionContext{Ctx: ctx, Store: st}
	result := NewResult()

	assert.NoError(t, evaluate(result, Assertion{Type: AssertChangesets, Path: "generated-a.js", Count: count(1)}, actx))
	assert.NoError(t, evaluate(result, Assertion{Type: AssertChangesets, Path: "b.js", Count: count(0)}, actx))

	err = evaluate(result, Assertion{Type: AssertChangesets, Path: "a.js", Count: count(2)}, actx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cs-1(ADD a.js)")

	assert.Error(t, evaluate(result, Assertion{Type: AssertChangesets, Path: "a.js", Count: count(1)}, nil))
}

func TestEvaluateAssertions(t *testing.T) {
	result := treeResult(map[string]string{"a.js": "a"})
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertExists, Path: "a.js"},
		{Type: AssertExists, Path: "b.js"},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertion 2")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertExists,
		Expected: "x.js exists",
		Actual:   "not found in tree",
		Files:    []string{"a.js", "b.js"},
	}
	assert.Equal(t,
		"Assertion failed: exists\n"+
			"  Expected: x.js exists\n"+
			"  Actual: not found in tree\n"+
			"\nFinal tree:\n"+
			"  a.js\n"+
			"  b.js\n",
		err.Error())
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
