package store

import "fmt"

// Blast-radius queries: given a change to one file, which other files
// must be re-resolved. Used by the incremental updater.

// FilesReferencingSymbols returns the distinct files holding refs that
// currently resolve to any of the given symbols.
func (s *Store) FilesReferencingSymbols(symbolIDs []int64) ([]int64, error) {
	if len(symbolIDs) == 0 {
		return nil, nil
	}
	ph := placeholderList(len(symbolIDs))
	ids, err := idsIn(s.db,
		`SELECT DISTINCT r.file_id FROM refs r
		 JOIN resolved_refs rr ON rr.ref_id = r.id
		 WHERE rr.target_symbol_id IN (`+ph+`)`,
		int64sToArgs(symbolIDs)...)
	if err != nil {
		return nil, fmt.Errorf("files referencing symbols: %w", err)
	}
	return ids, nil
}

// FilesImportingModule returns the distinct files with an import whose
// source is the module name or ends with it as a path/dotted segment.
func (s *Store) FilesImportingModule(module string) ([]int64, error) {
	ids, err := idsIn(s.db,
		`SELECT DISTINCT file_id FROM imports
		 WHERE source = ? OR source LIKE ? OR source LIKE ?`,
		module, "%/"+module, "%."+module)
	if err != nil {
		return nil, fmt.Errorf("files importing module: %w", err)
	}
	return ids, nil
}

// FilesWithUnresolvedRefs returns the distinct files holding candidates
// with no resolution row, i.e. the retry backlog.
func (s *Store) FilesWithUnresolvedRefs() ([]int64, error) {
	ids, err := idsIn(s.db,
		`SELECT DISTINCT file_id FROM refs
		 WHERE id NOT IN (SELECT ref_id FROM resolved_refs)`)
	if err != nil {
		return nil, fmt.Errorf("files with unresolved refs: %w", err)
	}
	return ids, nil
}
