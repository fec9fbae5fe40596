package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/macrome/internal/ir"
)

// ErrNotFound is returned when a token has no journal entry.
var ErrNotFound = errors.New("not found")

// ReadChangeset returns the Changeset recorded under token.
func (s *Store) ReadChangeset(ctx context.Context, token string) (ir.ChangesetRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, seq, root, op, status, steps
		FROM changesets
		WHERE token = ?
	`, token)
	rec, err := scanChangeset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ChangesetRecord{}, fmt.Errorf("changeset %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return ir.ChangesetRecord{}, err
	}
	if rec.Paths, err = s.readPaths(ctx, token); err != nil {
		return ir.ChangesetRecord{}, err
	}
	return rec, nil
}

// LastSeq returns the highest recorded sequence number, 0 for an empty
// journal. A new engine's clock starts here so seq stays ordered across runs.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changesets`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq, nil
}

// Trace returns every Changeset whose path list contains path, oldest
// first. Returns an empty slice (not nil) when there are none.
func (s *Store) Trace(ctx context.Context, path string) ([]ir.ChangesetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT c.token, c.seq, c.root, c.op, c.status, c.steps
		FROM changesets c
		JOIN changeset_paths p ON p.token = c.token
		WHERE p.path = ?
		ORDER BY c.seq ASC, c.token COLLATE BINARY ASC
	`, path)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}

	recs := []ir.ChangesetRecord{}
	for rows.Next() {
		rec, err := scanChangeset(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate trace: %w", err)
	}
	rows.Close()

	// Single connection: paths are read once the cursor is closed.
	for i := range recs {
		if recs[i].Paths, err = s.readPaths(ctx, recs[i].Token); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// Failures returns the failures recorded under token in insertion order.
func (s *Store) Failures(ctx context.Context, token string) ([]ir.FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, generator, path, message
		FROM failures
		WHERE token = ?
		ORDER BY id ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	out := []ir.FailureRecord{}
	for rows.Next() {
		var f ir.FailureRecord
		if err := rows.Scan(&f.Token, &f.Generator, &f.Path, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}

func (s *Store) readPaths(ctx context.Context, token string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM changeset_paths
		WHERE token = ?
		ORDER BY position ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query paths: %w", err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paths: %w", err)
	}
	return paths, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChangeset(row scanner) (ir.ChangesetRecord, error) {
	var (
		rec ir.ChangesetRecord
		op  string
	)
	if err := row.Scan(&rec.Token, &rec.Seq, &rec.Root, &op, &rec.Status, &rec.Steps); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan changeset: %w", err)
	}
	parsed, err := ir.ParseOperation(op)
	if err != nil {
		return rec, fmt.Errorf("scan changeset %s: %w", rec.Token, err)
	}
	rec.Op = parsed
	return rec, nil
}
