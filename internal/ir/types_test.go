package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeFromEvent(t *testing.T) {
	tests := []struct {
		name          string
		exists, isNew bool
		want          Operation
	}{
		{"missing is remove", false, false, OpRemove},
		{"missing and new is still remove", false, true, OpRemove},
		{"new file is add", true, true, OpAdd},
		{"existing file is update", true, false, OpUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ChangeFromEvent("lib/a.js", tt.exists, tt.isNew, 42)
			assert.Equal(t, tt.want, c.Op)
			assert.Equal(t, "lib/a.js", c.Path)
			assert.Equal(t, int64(42), c.ModTime)
			assert.Empty(t, c.Generator, "events are root changes")
		})
	}
}

func TestOperationStringRoundTrip(t *testing.T) {
	for _, op := range []Operation{OpAdd, OpUpdate, OpRemove} {
		got, err := ParseOperation(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}

	_, err := ParseOperation("MOVE")
	assert.Error(t, err)
	assert.Equal(t, "Operation(9)", Operation(9).String())
}

func TestChangeString(t *testing.T) {
	assert.Equal(t, "REMOVE lib/a.js", Change{Path: "lib/a.js", Op: OpRemove}.String())
}
