package store

import (
	"context"
	"fmt"

	"github.com/roach88/macrome/internal/ir"
)

// RecordChangeset appends a closed Changeset and its path list.
// Uses ON CONFLICT(token) DO NOTHING for idempotency: a token already
// recorded is silently ignored, path list included.
func (s *Store) RecordChangeset(ctx context.Context, rec ir.ChangesetRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record changeset: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO changesets (token, seq, root, op, status, steps)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`, rec.Token, rec.Seq, rec.Root, rec.Op.String(), rec.Status, rec.Steps)
	if err != nil {
		return fmt.Errorf("record changeset: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO changeset_paths (token, position, path) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("record changeset paths: %w", err)
	}
	defer stmt.Close()
	for i, p := range rec.Paths {
		if _, err := stmt.ExecContext(ctx, rec.Token, i, p); err != nil {
			return fmt.Errorf("record changeset path %q: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record changeset: %w", err)
	}
	return nil
}

// RecordFailure appends a generator failure.
func (s *Store) RecordFailure(ctx context.Context, rec ir.FailureRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failures (token, generator, path, message)
		VALUES (?, ?, ?, ?)
	`, rec.Token, rec.Generator, rec.Path, rec.Message)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}
