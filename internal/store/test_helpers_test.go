package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/macrome/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return createTestStoreAt(t, filepath.Join(t.TempDir(), "test.db"))
}

// createTestStoreAt opens the journal at path, closing it with the test.
func createTestStoreAt(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestChangeset creates a closed changeset record.
func createTestChangeset(token, root string, seq int64, paths ...string) ir.ChangesetRecord {
	return ir.ChangesetRecord{
		Token:  token,
		Seq:    seq,
		Root:   root,
		Op:     ir.OpAdd,
		Status: ir.StatusClosed,
		Steps:  len(paths),
		Paths:  append([]string{root}, paths...),
	}
}
