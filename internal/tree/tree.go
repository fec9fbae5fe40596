// Package tree enumerates project files under a match filter.
package tree

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/roach88/macrome/internal/match"
)

// Walk returns the slash-separated paths of every regular file below root
// accepted by m, sorted. Directories m prunes are not descended into.
// A missing root yields an empty result.
func Walk(bfs billy.Filesystem, root string, m *match.Matcher) ([]string, error) {
	if root == "" {
		root = "."
	}
	var out []string
	err := util.Walk(bfs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if p == root && errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		switch {
		case info.IsDir():
			if m.SkipDir(rel) {
				return filepath.SkipDir
			}
		case info.Mode().IsRegular():
			if m.Matches(rel) {
				out = append(out, rel)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
