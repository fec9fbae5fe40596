package testutil

import (
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

// NewTree returns an in-memory filesystem holding files, keyed by
// slash-separated path.
func NewTree(files map[string]string) (billy.Filesystem, error) {
	fs := memfs.New()
	for _, p := range sortedKeys(files) {
		if err := util.WriteFile(fs, p, []byte(files[p]), 0o644); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

// Snapshot returns every regular file under fs and its contents.
func Snapshot(fs billy.Filesystem) (map[string]string, error) {
	out := make(map[string]string)
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := fs.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			p := e.Name()
			if dir != "" {
				p = path.Join(dir, e.Name())
			}
			if e.IsDir() {
				if err := walk(p); err != nil {
					return err
				}
				continue
			}
			data, err := util.ReadFile(fs, p)
			if err != nil {
				return err
			}
			out[p] = string(data)
		}
		return nil
	}
	if err := walk(""); err != nil {
		return nil, err
	}
	return out, nil
}

// RenderTree formats a snapshot for golden comparison: one "--- path" line
// per file in path order, followed by its contents. Contents missing a
// trailing newline get one.
func RenderTree(files map[string]string) string {
	var b strings.Builder
	for _, p := range sortedKeys(files) {
		b.WriteString("--- ")
		b.WriteString(p)
		b.WriteByte('\n')
		content := files[p]
		b.WriteString(content)
		if content != "" && !strings.HasSuffix(content, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
