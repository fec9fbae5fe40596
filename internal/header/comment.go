package header

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/roach88/macrome/internal/ir"
)

// CommentAccessor handles any syntax where the header is a run of comment
// lines. Open starts the first line, Prefix starts every following line and
// Close, if set, is a line of its own ending the comment. One blank line
// separates the header from the content.
type CommentAccessor struct {
	Syntax string
	Exts   []string
	Open   string
	Prefix string
	Close  string
}

// CFamily returns the accessor for block-comment languages.
func CFamily() *CommentAccessor {
	return &CommentAccessor{
		Syntax: "c-family",
		Exts: []string{
			".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx", ".mts", ".cts",
			".c", ".h", ".cc", ".cpp", ".hpp", ".java", ".kt", ".swift",
			".rs", ".css", ".scss",
		},
		Open:   "/* ",
		Prefix: " * ",
		Close:  " */",
	}
}

// Hash returns the accessor for languages with # line comments.
func Hash() *CommentAccessor {
	return &CommentAccessor{
		Syntax: "hash",
		Exts:   []string{".sh", ".bash", ".py", ".rb", ".yaml", ".yml", ".toml"},
		Open:   "# ",
		Prefix: "# ",
	}
}

// Name implements Accessor.
func (c *CommentAccessor) Name() string { return c.Syntax }

// Extensions implements Accessor.
func (c *CommentAccessor) Extensions() []string {
	out := make([]string, len(c.Exts))
	copy(out, c.Exts)
	return out
}

// ReadAnnotations implements Accessor. Only the header lines are read.
func (c *CommentAccessor) ReadAnnotations(fs billy.Basic, path string) (ir.Annotations, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, _ := c.parse(newLineReader(f))
	if h == nil {
		return nil, nil
	}
	return h.Annotations, nil
}

// Read implements Accessor.
func (c *CommentAccessor) Read(fs billy.Basic, path string) (*ir.File, error) {
	data, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	h, n := c.parse(newLineReader(bytes.NewReader(data)))
	if h == nil {
		return &ir.File{Content: string(data)}, nil
	}
	return &ir.File{Header: h, Content: string(data[n:])}, nil
}

// Write implements Accessor.
func (c *CommentAccessor) Write(fs billy.Basic, path string, file ir.File) error {
	data, err := c.Render(file)
	if err != nil {
		return err
	}
	return util.WriteFile(fs, path, data, 0o644)
}

// Render returns the bytes Write would store for file.
func (c *CommentAccessor) Render(file ir.File) ([]byte, error) {
	content := []byte(file.Content)
	if file.Header == nil {
		return content, nil
	}

	h := file.Header
	if !h.Annotations.IsOwned() {
		return nil, ErrNotOwned
	}
	if err := h.Annotations.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if err := c.checkComment(h.Comment); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for i, a := range h.Annotations {
		if i == 0 {
			buf.WriteString(c.Open)
		} else {
			buf.WriteString(c.Prefix)
		}
		buf.WriteByte('@')
		buf.WriteString(a.Key)
		if a.Value != "" {
			buf.WriteByte(' ')
			buf.WriteString(a.Value)
		}
		buf.WriteByte('\n')
	}
	for _, line := range h.Comment {
		if line == "" {
			buf.WriteString(strings.TrimRight(c.Prefix, " "))
		} else {
			buf.WriteString(c.Prefix)
			buf.WriteString(line)
		}
		buf.WriteByte('\n')
	}
	if c.Close != "" {
		buf.WriteString(c.Close)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(content)
	return buf.Bytes(), nil
}

func (c *CommentAccessor) checkComment(lines []string) error {
	for i, line := range lines {
		if strings.ContainsAny(line, "\r\n") {
			return fmt.Errorf("%w: comment line %d spans lines", ErrInvalidHeader, i)
		}
		if i == 0 && strings.HasPrefix(line, "@") {
			return fmt.Errorf("%w: first comment line reads as an annotation", ErrInvalidHeader)
		}
		if c.Close != "" && strings.Contains(line, strings.TrimSpace(c.Close)) {
			return fmt.Errorf("%w: comment line %d closes the comment", ErrInvalidHeader, i)
		}
	}
	return nil
}

// parse reads a header from lr. It returns nil when the input does not begin
// with a well-formed header, along with the number of bytes the header and
// its separator occupy.
func (c *CommentAccessor) parse(lr *lineReader) (*ir.FileHeader, int) {
	first, ok := lr.next()
	if !ok || !strings.HasPrefix(first, c.Open+"@") {
		return nil, 0
	}
	h := &ir.FileHeader{}
	if !addAnnotation(h, first[len(c.Open)+1:]) {
		return nil, 0
	}

	closeLine := strings.TrimSpace(c.Close)
	bare := strings.TrimRight(c.Prefix, " ")
	inComment := false
	for {
		line, ok := lr.next()
		if !ok {
			if c.Close != "" {
				return nil, 0
			}
			return h, lr.n
		}
		if c.Close != "" && strings.TrimSpace(line) == closeLine {
			lr.skipBlank()
			return h, lr.n
		}
		if c.Close == "" && line == "" {
			return h, lr.n
		}

		var text string
		switch {
		case line == bare:
		case strings.HasPrefix(line, c.Prefix):
			text = line[len(c.Prefix):]
		default:
			return nil, 0
		}
		if !inComment && strings.HasPrefix(text, "@") {
			if !addAnnotation(h, text[1:]) {
				return nil, 0
			}
			continue
		}
		inComment = true
		h.Comment = append(h.Comment, text)
	}
}

func addAnnotation(h *ir.FileHeader, s string) bool {
	key, value, _ := strings.Cut(s, " ")
	if !ir.ValidKey(key) || h.Annotations.Has(key) {
		return false
	}
	h.Annotations = append(h.Annotations, ir.Annotation{Key: key, Value: value})
	return true
}

// lineReader yields lines without their terminators and counts consumed bytes.
type lineReader struct {
	r *bufio.Reader
	n int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

func (l *lineReader) next() (string, bool) {
	s, err := l.r.ReadString('\n')
	if s == "" && err != nil {
		return "", false
	}
	l.n += len(s)
	return strings.TrimRight(s, "\r\n"), true
}

func (l *lineReader) skipBlank() {
	b, _ := l.r.Peek(2)
	switch {
	case len(b) >= 1 && b[0] == '\n':
		l.r.Discard(1)
		l.n++
	case len(b) == 2 && b[0] == '\r' && b[1] == '\n':
		l.r.Discard(2)
		l.n += 2
	}
}
