package ir

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath turns p into the canonical project-relative form used as a
// Changeset key: slash-separated, cleaned and NFC-normalised.
//
// Some filesystems (notably HFS+) report decomposed names; normalising keeps
// the same file from appearing under two keys.
func NormalizePath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q is absolute", p)
	}
	clean := path.Clean(norm.NFC.String(p))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes the project root", p)
	}
	return clean, nil
}

// RelativeRef returns a "./"-prefixed reference from the directory of from to
// target, both project-relative. It is the value of generated-from.
func RelativeRef(from, target string) string {
	fromDir := path.Dir(from)
	if fromDir == "." {
		return "./" + target
	}
	fromParts := strings.Split(fromDir, "/")
	targetParts := strings.Split(target, "/")

	i := 0
	for i < len(fromParts) && i < len(targetParts)-1 && fromParts[i] == targetParts[i] {
		i++
	}
	var b strings.Builder
	ups := len(fromParts) - i
	if ups == 0 {
		b.WriteString("./")
	}
	for j := 0; j < ups; j++ {
		b.WriteString("../")
	}
	b.WriteString(strings.Join(targetParts[i:], "/"))
	return b.String()
}
