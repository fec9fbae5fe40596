package header

import "mvdan.cc/gofumpt/format"

// Go returns the accessor for Go sources. Like every accessor it stores
// content byte for byte; generators format before writing with FormatGo.
func Go() *CommentAccessor {
	return &CommentAccessor{
		Syntax: "go",
		Exts:   []string{".go"},
		Open:   "/* ",
		Prefix: " * ",
		Close:  " */",
	}
}

// FormatGo returns src formatted with gofumpt.
func FormatGo(src string) (string, error) {
	out, err := format.Source([]byte(src), format.Options{})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
