package store

import (
	"context"
	"fmt"
)

// Load appends objects of the named element type to the store. Objects are
// stored in order; seq follows load order.
//
// All objects are written in one transaction: either every object is
// stored or none is.
func (s *Store) Load(ctx context.Context, element string, objects []any) error {
	typ, err := s.elementType(element)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	rows := make([]string, len(objects))
	for i, obj := range objects {
		data, err := s.marshalObject(typ, obj)
		if err != nil {
			return fmt.Errorf("load %s object %d: %w", element, i, err)
		}
		rows[i] = data
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("load: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO objects (kind, data) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("load: prepare: %w", err)
	}
	defer stmt.Close()

	seqs := make([]int64, len(rows))
	for i, data := range rows {
		res, err := stmt.ExecContext(ctx, element, data)
		if err != nil {
			return fmt.Errorf("load %s object %d: %w", element, i, err)
		}
		if seqs[i], err = res.LastInsertId(); err != nil {
			return fmt.Errorf("load %s object %d: %w", element, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("load: commit: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, seq := range seqs {
		s.originals[seq] = objects[i]
	}
	return nil
}
