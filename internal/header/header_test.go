package header

import (
	"errors"
	"os"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/macrome/internal/ir"
)

func TestCFamilyRender(t *testing.T) {
	file := ir.File{
		Header: &ir.FileHeader{
			Annotations: ir.Owned(
				ir.Annotation{Key: ir.KeyGeneratedBy, Value: "copy"},
				ir.Annotation{Key: ir.KeyGeneratedFrom, Value: "./foo.js"},
			),
			Comment: []string{"do not edit", "", "regenerate with macrome"},
		},
		Content: "export const x = 1;\n",
	}

	got, err := CFamily().Render(file)
	require.NoError(t, err)
	want := "/* @macrome\n" +
		" * @generated-by copy\n" +
		" * @generated-from ./foo.js\n" +
		" * do not edit\n" +
		" *\n" +
		" * regenerate with macrome\n" +
		" */\n" +
		"\n" +
		"export const x = 1;\n"
	assert.Equal(t, want, string(got))
}

func TestHashRender(t *testing.T) {
	file := ir.File{
		Header:  &ir.FileHeader{Annotations: ir.Owned(ir.Annotation{Key: ir.KeyGeneratedBy, Value: "copy"})},
		Content: "echo hi\n",
	}
	got, err := Hash().Render(file)
	require.NoError(t, err)
	assert.Equal(t, "# @macrome\n# @generated-by copy\n\necho hi\n", string(got))
}

func TestRoundTrip(t *testing.T) {
	files := []ir.File{
		{
			Header:  &ir.FileHeader{Annotations: ir.Owned()},
			Content: "",
		},
		{
			Header: &ir.FileHeader{
				Annotations: ir.Owned(
					ir.Annotation{Key: ir.KeyGeneratedBy, Value: "gen/index.js"},
					ir.Annotation{Key: "flag"},
					ir.Annotation{Key: "spaced", Value: "a value with spaces"},
				),
				Comment: []string{"first", "", "  indented"},
			},
			Content: "line one\n\nline three\n",
		},
		{
			Header:  &ir.FileHeader{Annotations: ir.Owned()},
			Content: "\n\nleading blank lines survive\n",
		},
	}

	accessors := map[string]*CommentAccessor{
		"a.js": CFamily(),
		"a.py": Hash(),
	}
	for name, acc := range accessors {
		for i, want := range files {
			t.Run(acc.Name(), func(t *testing.T) {
				fs := memfs.New()
				require.NoError(t, acc.Write(fs, name, want))

				got, err := acc.Read(fs, name)
				require.NoError(t, err)
				require.NotNil(t, got.Header, "file %d", i)
				assert.Equal(t, want.Header.Annotations, got.Header.Annotations)
				assert.Equal(t, want.Header.Comment, got.Header.Comment)
				assert.Equal(t, want.Content, got.Content)

				annotations, err := acc.ReadAnnotations(fs, name)
				require.NoError(t, err)
				assert.Equal(t, want.Header.Annotations, annotations)
			})
		}
	}
}

func TestReadWithoutHeader(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"plain", "export const x = 1;\n"},
		{"empty", ""},
		{"ordinary comment", "/* just a comment */\nconst y = 2;\n"},
		{"unterminated", "/* @macrome\n * @generated-by copy\n"},
		{"bad key", "/* @1bad\n */\n\nx\n"},
		{"foreign line", "/* @macrome\nnot a comment line\n */\n"},
		{"duplicate key", "/* @macrome\n * @macrome\n */\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := memfs.New()
			require.NoError(t, util.WriteFile(fs, "x.js", []byte(tt.content), 0o644))

			annotations, err := CFamily().ReadAnnotations(fs, "x.js")
			require.NoError(t, err)
			assert.Nil(t, annotations)

			file, err := CFamily().Read(fs, "x.js")
			require.NoError(t, err)
			assert.Nil(t, file.Header)
			assert.Equal(t, tt.content, file.Content)
		})
	}
}

func TestReadForeignHeader(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "x.js", []byte("/* @license MIT\n */\n\nbody\n"), 0o644))

	annotations, err := CFamily().ReadAnnotations(fs, "x.js")
	require.NoError(t, err)
	assert.Equal(t, ir.Annotations{{Key: "license", Value: "MIT"}}, annotations)
	assert.False(t, annotations.IsOwned())
}

func TestWriteRefusesUnowned(t *testing.T) {
	fs := memfs.New()
	file := ir.File{
		Header:  &ir.FileHeader{Annotations: ir.Annotations{{Key: "license", Value: "MIT"}}},
		Content: "x",
	}
	err := CFamily().Write(fs, "x.js", file)
	require.ErrorIs(t, err, ErrNotOwned)

	_, statErr := fs.Stat("x.js")
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestWriteRejectsUnrenderableHeader(t *testing.T) {
	tests := []struct {
		name   string
		header ir.FileHeader
	}{
		{"multiline value", ir.FileHeader{Annotations: ir.Owned(ir.Annotation{Key: "k", Value: "a\nb"})}},
		{"comment closes block", ir.FileHeader{Annotations: ir.Owned(), Comment: []string{"oops */"}}},
		{"comment reads as annotation", ir.FileHeader{Annotations: ir.Owned(), Comment: []string{"@k v"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CFamily().Render(ir.File{Header: &tt.header})
			assert.True(t, errors.Is(err, ErrInvalidHeader), "got %v", err)
		})
	}
}

func TestWriteCreatesParents(t *testing.T) {
	fs := memfs.New()
	file := ir.File{Header: &ir.FileHeader{Annotations: ir.Owned()}, Content: "x\n"}
	require.NoError(t, CFamily().Write(fs, "deep/er/x.js", file))

	got, err := util.ReadFile(fs, "deep/er/x.js")
	require.NoError(t, err)
	assert.Equal(t, "/* @macrome\n */\n\nx\n", string(got))
}

func TestGoAccessor(t *testing.T) {
	fs := memfs.New()
	file := ir.File{
		Header:  &ir.FileHeader{Annotations: ir.Owned(ir.Annotation{Key: ir.KeyGeneratedBy, Value: "gen"})},
		Content: "package x\nfunc  f() {}\n",
	}
	require.NoError(t, Go().Write(fs, "x.go", file))

	got, err := util.ReadFile(fs, "x.go")
	require.NoError(t, err)
	assert.Equal(t, "/* @macrome\n * @generated-by gen\n */\n\npackage x\nfunc  f() {}\n", string(got))
}

func TestRoundTripEveryAccessor(t *testing.T) {
	contents := []string{
		"",
		"x",
		"package x\nfunc  f() {}\n",
		"\n\nleading blank lines\n",
		"/* not a header */\n",
		"# not a header\r\nwith crlf\r\n",
	}
	r := NewRegistry()
	for _, name := range []string{"a.js", "a.sh", "a.go"} {
		acc, err := r.For(name)
		require.NoError(t, err)
		for _, content := range contents {
			fs := memfs.New()
			file := ir.File{
				Header: &ir.FileHeader{
					Annotations: ir.Owned(ir.Annotation{Key: ir.KeyGeneratedBy, Value: "gen"}),
					Comment:     []string{"note"},
				},
				Content: content,
			}
			require.NoError(t, acc.Write(fs, name, file))

			got, err := acc.Read(fs, name)
			require.NoError(t, err)
			require.NotNil(t, got.Header, "%s %q", acc.Name(), content)
			assert.Equal(t, content, got.Content, "%s %q", acc.Name(), content)
			assert.Equal(t, file.Header.Annotations, got.Header.Annotations)
		}
	}
}

func TestFormatGo(t *testing.T) {
	got, err := FormatGo("package x\nvar   Y=1\n")
	require.NoError(t, err)
	assert.Equal(t, "package x\n\nvar Y = 1\n", got)

	_, err = FormatGo("not go at all {")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		path   string
		syntax string
	}{
		{"a.js", "c-family"},
		{"dir/a.TS", "c-family"},
		{"a.go", "go"},
		{"scripts/run.sh", "hash"},
		{"conf.yaml", "hash"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			a, err := r.For(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.syntax, a.Name())
		})
	}

	_, err := r.For("README")
	assert.ErrorIs(t, err, ErrNoAccessor)
	_, err = r.For("image.png")
	assert.ErrorIs(t, err, ErrNoAccessor)

	custom := &CommentAccessor{Syntax: "sql", Exts: []string{".sql"}, Open: "-- ", Prefix: "-- "}
	r.Register(custom)
	a, err := r.For("q.sql")
	require.NoError(t, err)
	assert.Same(t, Accessor(custom), a)
}
