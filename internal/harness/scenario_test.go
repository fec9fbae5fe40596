package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/copy_lifecycle.yaml")
	require.NoError(t, err)

	assert.Equal(t, "copy_lifecycle", s.Name)
	require.Len(t, s.Generators, 1)
	assert.Equal(t, "copy", s.Generators[0].Path)
	assert.Equal(t, "lib/**/*.js", s.Generators[0].Options["include"])
	assert.Equal(t, "x", s.Files["lib/foo.js"])
	require.Len(t, s.Steps, 3)
	assert.Equal(t, Step{Op: OpWrite, Path: "lib/bar.js", Content: "y"}, s.Steps[1])
	require.Len(t, s.Assertions, 5)
	require.NotNil(t, s.Assertions[3].Count)
	assert.Equal(t, 2, *s.Assertions[3].Count)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: "d"
steps: [{op: build}]
assertion:
  - type: exists
    path: a.js
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: `description: d`,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: `name: n`,
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\nassertions: [{type: exists, path: a}]",
			want: "steps list is required",
		},
		{
			name: "no assertions",
			yaml: "name: n\ndescription: d\nsteps: [{op: build}]",
			want: "assertions list is required",
		},
		{
			name: "generator without path",
			yaml: "name: n\ndescription: d\ngenerators: [{options: {}}]\nsteps: [{op: build}]\nassertions: [{type: exists, path: a}]",
			want: "generators[0]: path is required",
		},
		{
			name: "unknown op",
			yaml: "name: n\ndescription: d\nsteps: [{op: touch}]\nassertions: [{type: exists, path: a}]",
			want: `steps[0]: unknown op "touch"`,
		},
		{
			name: "missing op",
			yaml: "name: n\ndescription: d\nsteps: [{path: a}]\nassertions: [{type: exists, path: a}]",
			want: "steps[0]: op is required",
		},
		{
			name: "write without path",
			yaml: "name: n\ndescription: d\nsteps: [{op: write}]\nassertions: [{type: exists, path: a}]",
			want: "steps[0]: path is required for write",
		},
		{
			name: "build with path",
			yaml: "name: n\ndescription: d\nsteps: [{op: build, path: a}]\nassertions: [{type: exists, path: a}]",
			want: "steps[0]: build takes no path",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nsteps: [{op: build}]\nassertions: [{type: trace_order}]",
			want: `assertions[0]: unknown assertion type "trace_order"`,
		},
		{
			name: "missing assertion type",
			yaml: "name: n\ndescription: d\nsteps: [{op: build}]\nassertions: [{path: a}]",
			want: "assertions[0]: type is required",
		},
		{
			name: "exists without path",
			yaml: "name: n\ndescription: d\nsteps: [{op: build}]\nassertions: [{type: exists}]",
			want: "assertions[0]: path is required for exists",
		},
		{
			name: "contains without text",
			yaml: "name: n\ndescription: d\nsteps: [{op: build}]\nassertions: [{type: contains, path: a}]",
			want: "contains is required",
		},
		{
			name: "annotation without key",
			yaml: "name: n\ndescription: d\nsteps: [{op: build}]\nassertions: [{type: annotation, path: a}]",
			want: "key is required",
		},
		{
			name: "failures without count",
			yaml: "name: n\ndescription: d\nsteps: [{op: build}]\nassertions: [{type: failures}]",
			want: "non-negative count is required for failures",
		},
		{
			name: "negative changesets count",
			yaml: "name: n\ndescription: d\nsteps: [{op: build}]\nassertions: [{type: changesets, path: a, count: -1}]",
			want: "non-negative count is required for changesets",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_FailuresNeedNoPath(t *testing.T) {
	s, err := ParseScenario([]byte("name: n\ndescription: d\nsteps: [{op: build}]\nassertions: [{type: failures, count: 0}]"))
	require.NoError(t, err)
	assert.Equal(t, 0, *s.Assertions[0].Count)
}

func TestLoadScenarioDir(t *testing.T) {
	scenarios, err := LoadScenarioDir("testdata/scenarios")
	require.NoError(t, err)

	names := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"copy_lifecycle", "index_reduce", "stale_output"}, names)
}

func TestLoadScenarioDir_DuplicateName(t *testing.T) {
	dir := t.TempDir()
	body := "name: same\ndescription: d\nsteps: [{op: build}]\nassertions: [{type: failures, count: 0}]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(body), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.yml"), []byte(body), 0o644))

	_, err := LoadScenarioDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario name "same" already used by a.yaml`)
}

func TestLoadScenarioDir_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: n\n"), 0o644))

	_, err := LoadScenarioDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}
