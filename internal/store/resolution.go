package store

import "fmt"

// --- ResolvedRef operations ---

func (s *Store) InsertResolvedRef(rr *ResolvedRef) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO resolved_refs (ref_id, target_symbol_id, kind) VALUES (?, ?, ?)",
		rr.RefID, rr.TargetSymbolID, rr.Kind,
	)
	if err != nil {
		return 0, fmt.Errorf("insert resolved ref: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	rr.ID = id
	return id, nil
}

const resolvedRefCols = "id, ref_id, target_symbol_id, kind"

func (s *Store) queryResolvedRefs(query string, args ...any) ([]*ResolvedRef, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []*ResolvedRef
	for rows.Next() {
		rr := &ResolvedRef{}
		if err := rows.Scan(&rr.ID, &rr.RefID, &rr.TargetSymbolID, &rr.Kind); err != nil {
			return nil, fmt.Errorf("scan resolved ref: %w", err)
		}
		refs = append(refs, rr)
	}
	return refs, rows.Err()
}

func (s *Store) ResolvedRefsByRef(refID int64) ([]*ResolvedRef, error) {
	return s.queryResolvedRefs(
		"SELECT "+resolvedRefCols+" FROM resolved_refs WHERE ref_id = ? ORDER BY id", refID)
}

func (s *Store) ResolvedRefsByTarget(symbolID int64) ([]*ResolvedRef, error) {
	return s.queryResolvedRefs(
		"SELECT "+resolvedRefCols+" FROM resolved_refs WHERE target_symbol_id = ? ORDER BY id", symbolID)
}

// --- ImportBinding operations ---

func (s *Store) InsertImportBinding(ib *ImportBinding) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO import_bindings (import_id, target_file_id, target_symbol_id) VALUES (?, ?, ?)",
		ib.ImportID, ib.TargetFileID, ib.TargetSymbolID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert import binding: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	ib.ID = id
	return id, nil
}

func (s *Store) ImportBindingsByImport(importID int64) ([]*ImportBinding, error) {
	rows, err := s.db.Query(
		"SELECT id, import_id, target_file_id, target_symbol_id FROM import_bindings WHERE import_id = ? ORDER BY id",
		importID)
	if err != nil {
		return nil, fmt.Errorf("import bindings: %w", err)
	}
	defer rows.Close()
	var bindings []*ImportBinding
	for rows.Next() {
		ib := &ImportBinding{}
		if err := rows.Scan(&ib.ID, &ib.ImportID, &ib.TargetFileID, &ib.TargetSymbolID); err != nil {
			return nil, fmt.Errorf("scan import binding: %w", err)
		}
		bindings = append(bindings, ib)
	}
	return bindings, rows.Err()
}

// ImportBindingsByTarget returns the bindings of imports bound to one
// symbol, across all files.
func (s *Store) ImportBindingsByTarget(symbolID int64) ([]*ImportBinding, error) {
	rows, err := s.db.Query(
		"SELECT id, import_id, target_file_id, target_symbol_id FROM import_bindings WHERE target_symbol_id = ? ORDER BY id",
		symbolID)
	if err != nil {
		return nil, fmt.Errorf("import bindings by target: %w", err)
	}
	defer rows.Close()
	var bindings []*ImportBinding
	for rows.Next() {
		ib := &ImportBinding{}
		if err := rows.Scan(&ib.ID, &ib.ImportID, &ib.TargetFileID, &ib.TargetSymbolID); err != nil {
			return nil, fmt.Errorf("scan import binding: %w", err)
		}
		bindings = append(bindings, ib)
	}
	return bindings, rows.Err()
}

// --- CallEdge operations ---

func (s *Store) InsertCallEdge(ce *CallEdge) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO call_edges (caller_symbol_id, callee_symbol_id, ref_id) VALUES (?, ?, ?)",
		ce.CallerSymbolID, ce.CalleeSymbolID, ce.RefID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert call edge: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	ce.ID = id
	return id, nil
}

const callEdgeCols = "id, caller_symbol_id, callee_symbol_id, ref_id"

func (s *Store) queryCallEdges(query string, args ...any) ([]*CallEdge, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []*CallEdge
	for rows.Next() {
		ce := &CallEdge{}
		if err := rows.Scan(&ce.ID, &ce.CallerSymbolID, &ce.CalleeSymbolID, &ce.RefID); err != nil {
			return nil, fmt.Errorf("scan call edge: %w", err)
		}
		edges = append(edges, ce)
	}
	return edges, rows.Err()
}

func (s *Store) CallersByCallee(symbolID int64) ([]*CallEdge, error) {
	return s.queryCallEdges(
		"SELECT "+callEdgeCols+" FROM call_edges WHERE callee_symbol_id = ? ORDER BY id", symbolID)
}

func (s *Store) CalleesByCaller(symbolID int64) ([]*CallEdge, error) {
	return s.queryCallEdges(
		"SELECT "+callEdgeCols+" FROM call_edges WHERE caller_symbol_id = ? ORDER BY id", symbolID)
}

func (s *Store) AllCallEdges() ([]*CallEdge, error) {
	return s.queryCallEdges("SELECT " + callEdgeCols + " FROM call_edges ORDER BY id")
}

// --- InheritEdge operations ---

func (s *Store) InsertInheritEdge(ie *InheritEdge) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO inherits (class_symbol_id, parent_symbol_id, ref_id) VALUES (?, ?, ?)",
		ie.ClassSymbolID, ie.ParentSymbolID, ie.RefID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert inherit edge: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	ie.ID = id
	return id, nil
}

const inheritCols = "id, class_symbol_id, parent_symbol_id, ref_id"

func (s *Store) queryInherits(query string, args ...any) ([]*InheritEdge, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []*InheritEdge
	for rows.Next() {
		ie := &InheritEdge{}
		if err := rows.Scan(&ie.ID, &ie.ClassSymbolID, &ie.ParentSymbolID, &ie.RefID); err != nil {
			return nil, fmt.Errorf("scan inherit edge: %w", err)
		}
		edges = append(edges, ie)
	}
	return edges, rows.Err()
}

// SuperclassEdges returns edges where the given class is the subclass.
func (s *Store) SuperclassEdges(classSymbolID int64) ([]*InheritEdge, error) {
	return s.queryInherits(
		"SELECT "+inheritCols+" FROM inherits WHERE class_symbol_id = ? ORDER BY id", classSymbolID)
}

// SubclassEdges returns edges where the given class is the parent.
func (s *Store) SubclassEdges(parentSymbolID int64) ([]*InheritEdge, error) {
	return s.queryInherits(
		"SELECT "+inheritCols+" FROM inherits WHERE parent_symbol_id = ? ORDER BY id", parentSymbolID)
}

// --- Resolution cleanup ---

// DeleteResolutionDataForFiles removes all resolution rows derived from
// refs or imports in the given files, and clears their fail reasons so
// the resolver starts fresh.
func (s *Store) DeleteResolutionDataForFiles(fileIDs []int64) error {
	if len(fileIDs) == 0 {
		return nil
	}
	ph := placeholderList(len(fileIDs))
	args := int64sToArgs(fileIDs)
	for _, q := range []string{
		"DELETE FROM inherits WHERE ref_id IN (SELECT id FROM refs WHERE file_id IN (" + ph + "))",
		"DELETE FROM call_edges WHERE ref_id IN (SELECT id FROM refs WHERE file_id IN (" + ph + "))",
		"DELETE FROM resolved_refs WHERE ref_id IN (SELECT id FROM refs WHERE file_id IN (" + ph + "))",
		"DELETE FROM import_bindings WHERE import_id IN (SELECT id FROM imports WHERE file_id IN (" + ph + "))",
		"UPDATE refs SET fail_reason = '' WHERE file_id IN (" + ph + ")",
	} {
		if _, err := s.db.Exec(q, args...); err != nil {
			return fmt.Errorf("delete resolution data for files: %w", err)
		}
	}
	return nil
}

// DeleteResolutionDataForSymbols removes resolution rows that target the
// given symbols, used when symbols disappear in an incremental pass.
func (s *Store) DeleteResolutionDataForSymbols(symbolIDs []int64) error {
	if len(symbolIDs) == 0 {
		return nil
	}
	ph := placeholderList(len(symbolIDs))
	args := int64sToArgs(symbolIDs)
	for _, q := range []string{
		"DELETE FROM inherits WHERE class_symbol_id IN (" + ph + ") OR parent_symbol_id IN (" + ph + ")",
		"DELETE FROM call_edges WHERE caller_symbol_id IN (" + ph + ") OR callee_symbol_id IN (" + ph + ")",
		"DELETE FROM resolved_refs WHERE target_symbol_id IN (" + ph + ")",
		"DELETE FROM import_bindings WHERE target_symbol_id IN (" + ph + ")",
	} {
		expanded := args
		if countSubstring(q, "("+ph+")") > 1 {
			expanded = repeatArgs(args, 2)
		}
		if _, err := s.db.Exec(q, expanded...); err != nil {
			return fmt.Errorf("delete resolution data for symbols: %w", err)
		}
	}
	return nil
}
