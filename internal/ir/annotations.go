package ir

import (
	"errors"
	"fmt"
	"strings"
)

// Well-known annotation keys.
const (
	// KeyOwner is the ownership marker. It is always the first key of a
	// header written by macrome.
	KeyOwner = "macrome"
	// KeyGeneratedBy names the generator that wrote the file.
	KeyGeneratedBy = "generated-by"
	// KeyGeneratedFrom is a relative back-reference to the source path.
	KeyGeneratedFrom = "generated-from"
	// KeyGenerateFailed marks an error artifact written in place of output.
	KeyGenerateFailed = "generate-failed"
)

// ErrInvalidAnnotations is returned by Annotations.Validate.
var ErrInvalidAnnotations = errors.New("invalid annotations")

// Annotation is one key/value pair of a file header.
type Annotation struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Annotations is the ordered key/value metadata of a file header.
// Keys are unique; insertion order is significant.
type Annotations []Annotation

// Owned returns a fresh annotation list that starts with the ownership marker.
func Owned(pairs ...Annotation) Annotations {
	a := Annotations{{Key: KeyOwner}}
	for _, p := range pairs {
		a.Set(p.Key, p.Value)
	}
	return a
}

// Get returns the value for key and whether it is present.
func (a Annotations) Get(key string) (string, bool) {
	for _, p := range a {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (a Annotations) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Set replaces the value of an existing key in place, or appends a new pair.
func (a *Annotations) Set(key, value string) {
	for i := range *a {
		if (*a)[i].Key == key {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Annotation{Key: key, Value: value})
}

// Keys returns the keys in order.
func (a Annotations) Keys() []string {
	keys := make([]string, len(a))
	for i, p := range a {
		keys[i] = p.Key
	}
	return keys
}

// Clone returns a copy that shares no backing array with a.
func (a Annotations) Clone() Annotations {
	if a == nil {
		return nil
	}
	out := make(Annotations, len(a))
	copy(out, a)
	return out
}

// IsOwned reports whether the first key is the ownership marker.
func (a Annotations) IsOwned() bool {
	return len(a) > 0 && a[0].Key == KeyOwner
}

// Validate checks that a can be written as an owned header.
func (a Annotations) Validate() error {
	if !a.IsOwned() {
		return fmt.Errorf("%w: first key must be %q", ErrInvalidAnnotations, KeyOwner)
	}
	seen := make(map[string]bool, len(a))
	for _, p := range a {
		if !ValidKey(p.Key) {
			return fmt.Errorf("%w: bad key %q", ErrInvalidAnnotations, p.Key)
		}
		if seen[p.Key] {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidAnnotations, p.Key)
		}
		seen[p.Key] = true
		if strings.ContainsAny(p.Value, "\r\n") {
			return fmt.Errorf("%w: value of %q spans lines", ErrInvalidAnnotations, p.Key)
		}
	}
	return nil
}

// ValidKey reports whether k can be used as an annotation key.
func ValidKey(k string) bool {
	if k == "" {
		return false
	}
	for i, r := range k {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// FileHeader is the parsed machine header of a file.
type FileHeader struct {
	Annotations Annotations `json:"annotations"`
	// Comment holds free-text lines following the annotations.
	Comment []string `json:"comment,omitempty"`
}

// File is a header plus the content that follows it.
// Header is nil when the file has no recognised header.
type File struct {
	Header  *FileHeader `json:"header,omitempty"`
	Content string      `json:"content"`
}
