package testutil

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTree_Snapshot(t *testing.T) {
	files := map[string]string{
		"a.js":          "a",
		"lib/b.js":      "b\n",
		"lib/deep/c.js": "",
	}
	fs, err := NewTree(files)
	require.NoError(t, err)

	snap, err := Snapshot(fs)
	require.NoError(t, err)
	assert.Equal(t, files, snap)

	require.NoError(t, fs.Remove("a.js"))
	snap, err = Snapshot(fs)
	require.NoError(t, err)
	assert.NotContains(t, snap, "a.js")
}

func TestSnapshot_Empty(t *testing.T) {
	fs, err := NewTree(nil)
	require.NoError(t, err)

	snap, err := Snapshot(fs)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestRenderTree(t *testing.T) {
	got := RenderTree(map[string]string{
		"lib/b.js": "b\n",
		"a.js":     "a",
		"empty.js": "",
	})
	assert.Equal(t, "--- a.js\na\n--- empty.js\n--- lib/b.js\nb\n", got)
}

func TestDiscardLogger(t *testing.T) {
	logger := DiscardLogger()
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
}
