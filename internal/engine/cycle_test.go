package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleDetector_NewCycleDetector(t *testing.T) {
	cd := NewCycleDetector()
	require.NotNil(t, cd)
	assert.Equal(t, 0, cd.historySize())
}

func TestCycleDetector_WouldCycle(t *testing.T) {
	cd := NewCycleDetector()

	assert.False(t, cd.WouldCycle("cs-1", "gen-a", "a.js"), "first visit is not a cycle")

	cd.Record("cs-1", "gen-a", "a.js")
	assert.True(t, cd.WouldCycle("cs-1", "gen-a", "a.js"))

	assert.False(t, cd.WouldCycle("cs-1", "gen-b", "a.js"), "other generator")
	assert.False(t, cd.WouldCycle("cs-1", "gen-a", "b.js"), "other path")
	assert.False(t, cd.WouldCycle("cs-2", "gen-a", "a.js"), "other changeset")
}

func TestCycleDetector_Clear(t *testing.T) {
	cd := NewCycleDetector()
	cd.Record("cs-1", "gen-a", "a.js")
	cd.Record("cs-2", "gen-a", "a.js")
	assert.Equal(t, 2, cd.historySize())

	cd.Clear("cs-1")
	assert.Equal(t, 1, cd.historySize())
	assert.False(t, cd.WouldCycle("cs-1", "gen-a", "a.js"))
	assert.True(t, cd.WouldCycle("cs-2", "gen-a", "a.js"))
}
