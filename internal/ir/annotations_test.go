package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnedStartsWithMarker(t *testing.T) {
	a := Owned(
		Annotation{Key: KeyGeneratedBy, Value: "copy"},
		Annotation{Key: KeyGeneratedFrom, Value: "./foo.js"},
	)

	assert.Equal(t, []string{KeyOwner, KeyGeneratedBy, KeyGeneratedFrom}, a.Keys())
	assert.True(t, a.IsOwned())
	require.NoError(t, a.Validate())
}

func TestAnnotationsSetReplacesInPlace(t *testing.T) {
	a := Owned()
	a.Set("b", "1")
	a.Set("c", "2")
	a.Set("b", "3")

	assert.Equal(t, []string{KeyOwner, "b", "c"}, a.Keys())
	v, ok := a.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
	assert.False(t, a.Has("d"))
}

func TestAnnotationsValidate(t *testing.T) {
	tests := []struct {
		name string
		a    Annotations
		ok   bool
	}{
		{"empty", nil, false},
		{"marker not first", Annotations{{Key: "x"}, {Key: KeyOwner}}, false},
		{"duplicate key", Annotations{{Key: KeyOwner}, {Key: "x"}, {Key: "x"}}, false},
		{"bad key", Annotations{{Key: KeyOwner}, {Key: "has space"}}, false},
		{"digit first", Annotations{{Key: KeyOwner}, {Key: "1x"}}, false},
		{"multiline value", Annotations{{Key: KeyOwner}, {Key: "x", Value: "a\nb"}}, false},
		{"valid", Annotations{{Key: KeyOwner}, {Key: "generated-from", Value: "./a b.js"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.a.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidAnnotations)
			}
		})
	}
}

func TestAnnotationsClone(t *testing.T) {
	a := Owned(Annotation{Key: "x", Value: "1"})
	b := a.Clone()
	b.Set("x", "2")

	v, _ := a.Get("x")
	assert.Equal(t, "1", v)
	assert.Nil(t, Annotations(nil).Clone())
}
