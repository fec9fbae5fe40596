package ir

import "fmt"

// Operation is the kind of filesystem event a Change represents.
type Operation int

const (
	// OpAdd is a file that did not exist before the event.
	OpAdd Operation = iota + 1
	// OpUpdate is a modification of an existing file.
	OpUpdate
	// OpRemove is a file that no longer exists after the event.
	OpRemove
)

// String returns the wire name of the operation.
func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "ADD"
	case OpUpdate:
		return "UPDATE"
	case OpRemove:
		return "REMOVE"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// ParseOperation is the inverse of Operation.String.
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "ADD":
		return OpAdd, nil
	case "UPDATE":
		return OpUpdate, nil
	case "REMOVE":
		return OpRemove, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", s)
	}
}

// Change is one filesystem event, passed by value.
//
// Changes are created by the change source (root changes) or by a
// generator's write through its capability object (effects).
type Change struct {
	Path    string    `json:"path"`
	Op      Operation `json:"op"`
	Exists  bool      `json:"exists"`
	IsNew   bool      `json:"is_new"`
	ModTime int64     `json:"mtime_ms"`

	// Generator names the generator whose write produced this change.
	// Empty for root changes.
	Generator string `json:"generator,omitempty"`
}

// ChangeFromEvent translates change-source flags into a Change:
// !exists is REMOVE, exists && new is ADD, anything else is UPDATE.
func ChangeFromEvent(path string, exists, isNew bool, mtimeMs int64) Change {
	c := Change{Path: path, Exists: exists, IsNew: isNew, ModTime: mtimeMs}
	switch {
	case !exists:
		c.Op = OpRemove
		c.IsNew = false
	case isNew:
		c.Op = OpAdd
	default:
		c.Op = OpUpdate
	}
	return c
}

// String renders the change for logs.
func (c Change) String() string {
	return c.Op.String() + " " + c.Path
}
