package store

import "fmt"

// IntegrityError reports a dangling edge or stale row detected by
// CheckIntegrity. It indicates a programming error in the engine, never
// a user-facing condition.
type IntegrityError struct {
	Table  string
	RowID  int64
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("graph integrity: %s row %d: %s", e.Table, e.RowID, e.Detail)
}

// CheckIntegrity scans for edges whose source or target no longer exists.
// A healthy graph returns (nil, nil); any hit is a bug in the mutation or
// incremental paths.
func (s *Store) CheckIntegrity() ([]*IntegrityError, error) {
	var errs []*IntegrityError

	checks := []struct {
		table, detail, query string
	}{
		{"resolved_refs", "target symbol missing",
			`SELECT rr.id FROM resolved_refs rr
			 LEFT JOIN symbols sy ON sy.id = rr.target_symbol_id
			 WHERE sy.id IS NULL`},
		{"resolved_refs", "ref missing",
			`SELECT rr.id FROM resolved_refs rr
			 LEFT JOIN refs r ON r.id = rr.ref_id
			 WHERE r.id IS NULL`},
		{"call_edges", "callee missing",
			`SELECT ce.id FROM call_edges ce
			 LEFT JOIN symbols sy ON sy.id = ce.callee_symbol_id
			 WHERE sy.id IS NULL`},
		{"inherits", "parent missing",
			`SELECT ih.id FROM inherits ih
			 LEFT JOIN symbols sy ON sy.id = ih.parent_symbol_id
			 WHERE sy.id IS NULL`},
		{"import_bindings", "target file missing",
			`SELECT ib.id FROM import_bindings ib
			 LEFT JOIN files f ON f.id = ib.target_file_id
			 WHERE f.id IS NULL`},
		{"symbols", "span outside file",
			`SELECT sy.id FROM symbols sy
			 JOIN files f ON f.id = sy.file_id
			 WHERE sy.end_byte < sy.start_byte`},
	}
	for _, c := range checks {
		ids, err := idsIn(s.db, c.query)
		if err != nil {
			return nil, fmt.Errorf("integrity check %s: %w", c.table, err)
		}
		for _, id := range ids {
			errs = append(errs, &IntegrityError{Table: c.table, RowID: id, Detail: c.detail})
		}
	}
	return errs, nil
}
