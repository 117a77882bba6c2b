package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/sensorq/internal/querysql"
	"github.com/roach88/sensorq/internal/translate"
)

// Fetch evaluates one server request against the objects of the named
// element type and returns the matching objects in server order.
//
// Objects loaded by this Store are returned as passed to Load. Rows written
// by an earlier process are decoded into maps keyed by member name.
func (s *Store) Fetch(ctx context.Context, element string, req translate.Request) ([]any, error) {
	typ, err := s.elementType(element)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	query, params, err := querysql.NewSQLCompiler(typ).Compile(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", element, err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", element, err)
	}
	defer rows.Close()

	var seqs []int64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, fmt.Errorf("fetch %s: scan: %w", element, err)
		}
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", element, err)
	}

	out := make([]any, 0, len(seqs))
	for _, seq := range seqs {
		obj, err := s.object(ctx, typ.Name, seq)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", element, err)
		}
		out = append(out, obj)
	}
	return out, nil
}

func (s *Store) object(ctx context.Context, element string, seq int64) (any, error) {
	s.mu.RLock()
	obj, ok := s.originals[seq]
	s.mu.RUnlock()
	if ok {
		return obj, nil
	}

	typ, err := s.elementType(element)
	if err != nil {
		return nil, err
	}

	var data string
	err = s.db.QueryRowContext(ctx, "SELECT data FROM objects WHERE seq = ?", seq).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("object %d not found", seq)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %d: %w", seq, err)
	}
	return s.unmarshalObject(typ, data)
}
