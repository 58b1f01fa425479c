package store

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

func (s *Store) InsertFile(f *File) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO files (path, language, module, hash, line_count, last_indexed) VALUES (?, ?, ?, ?, ?, ?)",
		f.Path, f.Language, f.Module, f.Hash, f.LineCount, f.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

// UpdateFile rewrites a file row in place, preserving its rowid so
// identifiers held elsewhere (a pending blast radius, open transactions)
// stay valid across a reindex.
func (s *Store) UpdateFile(f *File) error {
	_, err := s.db.Exec(
		"UPDATE files SET path = ?, language = ?, module = ?, hash = ?, line_count = ?, last_indexed = ? WHERE id = ?",
		f.Path, f.Language, f.Module, f.Hash, f.LineCount, f.LastIndexed, f.ID,
	)
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	return nil
}

const fileCols = "id, path, language, module, hash, line_count, last_indexed"

func (s *Store) scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	err := scanner.Scan(&f.ID, &f.Path, &f.Language, &f.Module, &f.Hash, &f.LineCount, &f.LastIndexed)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) FileByPath(path string) (*File, error) {
	f, err := s.scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

func (s *Store) FileByID(id int64) (*File, error) {
	f, err := s.scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by id: %w", err)
	}
	return f, nil
}

func (s *Store) queryFiles(query string, args ...any) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := s.scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// AllFiles returns every indexed file ordered by path.
func (s *Store) AllFiles() ([]*File, error) {
	files, err := s.queryFiles("SELECT " + fileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("all files: %w", err)
	}
	return files, nil
}

// FilesByModule returns files whose module name matches, ordered by path
// so ties break deterministically.
func (s *Store) FilesByModule(module string) ([]*File, error) {
	files, err := s.queryFiles("SELECT "+fileCols+" FROM files WHERE module = ? ORDER BY path", module)
	if err != nil {
		return nil, fmt.Errorf("files by module: %w", err)
	}
	return files, nil
}

// --- Graph insertion ---

// InsertGraph writes one file's extraction output in a single SQL
// transaction, translating index-based links into rowids. Returns the
// rowids assigned to the symbols, in input order.
func (s *Store) InsertGraph(fileID int64, g *GraphRows) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	scopeIDs := make([]int64, len(g.Scopes))
	for i, sc := range g.Scopes {
		var parent any
		if sc.ParentIndex >= 0 {
			parent = scopeIDs[sc.ParentIndex] // parents precede children
		}
		res, err := tx.Exec(
			"INSERT INTO scopes (file_id, kind, parent_scope_id, start_byte, end_byte) VALUES (?, ?, ?, ?, ?)",
			fileID, sc.Kind, parent, sc.StartByte, sc.EndByte,
		)
		if err != nil {
			return nil, fmt.Errorf("insert scope: %w", err)
		}
		scopeIDs[i], _ = res.LastInsertId()
	}

	symbolIDs := make([]int64, len(g.Symbols))
	for i, sym := range g.Symbols {
		var parent any
		if sym.ParentIndex >= 0 {
			parent = symbolIDs[sym.ParentIndex]
		}
		res, err := tx.Exec(
			`INSERT INTO symbols (file_id, scope_id, name, kind, type_expr, exported, parent_symbol_id,
				start_byte, end_byte, name_start, name_end, start_line, start_col)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, scopeIDs[sym.ScopeIndex], sym.Name, sym.Kind, sym.TypeExpr, sym.Exported, parent,
			sym.StartByte, sym.EndByte, sym.NameStart, sym.NameEnd, sym.StartLine, sym.StartCol,
		)
		if err != nil {
			return nil, fmt.Errorf("insert symbol: %w", err)
		}
		symbolIDs[i], _ = res.LastInsertId()
	}

	for _, r := range g.Refs {
		var enclosing any
		if r.EnclosingIndex >= 0 {
			enclosing = symbolIDs[r.EnclosingIndex]
		}
		_, err := tx.Exec(
			`INSERT INTO refs (file_id, scope_id, enclosing_symbol_id, name, qualifier, context,
				start_byte, end_byte, start_line, start_col)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, scopeIDs[r.ScopeIndex], enclosing, r.Name, r.Qualifier, r.Context,
			r.StartByte, r.EndByte, r.StartLine, r.StartCol,
		)
		if err != nil {
			return nil, fmt.Errorf("insert ref: %w", err)
		}
	}

	for _, imp := range g.Imports {
		_, err := tx.Exec(
			`INSERT INTO imports (file_id, source, imported_name, local_alias, kind,
				start_byte, end_byte, name_start, name_end)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, imp.Source, imp.ImportedName, imp.LocalAlias, imp.Kind,
			imp.StartByte, imp.EndByte, imp.NameStart, imp.NameEnd,
		)
		if err != nil {
			return nil, fmt.Errorf("insert import: %w", err)
		}
	}

	for _, re := range g.Reexports {
		_, err := tx.Exec(
			"INSERT INTO reexports (file_id, source, exported_name, start_byte, end_byte) VALUES (?, ?, ?, ?, ?)",
			fileID, re.Source, re.ExportedName, re.StartByte, re.EndByte,
		)
		if err != nil {
			return nil, fmt.Errorf("insert reexport: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit graph: %w", err)
	}
	return symbolIDs, nil
}

// --- Symbol operations ---

const SymbolCols = `id, file_id, scope_id, name, kind, type_expr, exported, parent_symbol_id,
	start_byte, end_byte, name_start, name_end, start_line, start_col`

func (s *Store) scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	sym := &Symbol{}
	err := scanner.Scan(
		&sym.ID, &sym.FileID, &sym.ScopeID, &sym.Name, &sym.Kind, &sym.TypeExpr,
		&sym.Exported, &sym.ParentSymbolID,
		&sym.StartByte, &sym.EndByte, &sym.NameStart, &sym.NameEnd,
		&sym.StartLine, &sym.StartCol,
	)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

// ScanSymbolRow scans a single row into a Symbol. Exported for use by the
// query layer.
func (s *Store) ScanSymbolRow(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	return s.scanSymbol(scanner)
}

func (s *Store) querySymbols(query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var symbols []*Symbol
	for rows.Next() {
		sym, err := s.scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func (s *Store) SymbolByID(id int64) (*Symbol, error) {
	sym, err := s.scanSymbol(s.db.QueryRow("SELECT "+SymbolCols+" FROM symbols WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol by id: %w", err)
	}
	return sym, nil
}

func (s *Store) SymbolsByFile(fileID int64) ([]*Symbol, error) {
	syms, err := s.querySymbols("SELECT "+SymbolCols+" FROM symbols WHERE file_id = ? ORDER BY start_byte", fileID)
	if err != nil {
		return nil, fmt.Errorf("symbols by file: %w", err)
	}
	return syms, nil
}

func (s *Store) SymbolsByName(name string) ([]*Symbol, error) {
	syms, err := s.querySymbols(
		"SELECT "+SymbolCols+" FROM symbols WHERE name = ? ORDER BY file_id, start_byte", name)
	if err != nil {
		return nil, fmt.Errorf("symbols by name: %w", err)
	}
	return syms, nil
}

// SymbolsInScope returns declarations of name directly in a scope, in
// declaration order.
func (s *Store) SymbolsInScope(scopeID int64, name string) ([]*Symbol, error) {
	syms, err := s.querySymbols(
		"SELECT "+SymbolCols+" FROM symbols WHERE scope_id = ? AND name = ? ORDER BY start_byte",
		scopeID, name)
	if err != nil {
		return nil, fmt.Errorf("symbols in scope: %w", err)
	}
	return syms, nil
}

// FileScopeID returns the rowid of a file's outermost scope.
func (s *Store) FileScopeID(fileID int64) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		"SELECT id FROM scopes WHERE file_id = ? AND parent_scope_id IS NULL", fileID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("file scope: %w", err)
	}
	return id, nil
}

// ScopesByFile returns all scopes for a file, parents before children.
func (s *Store) ScopesByFile(fileID int64) ([]*Scope, error) {
	rows, err := s.db.Query(
		"SELECT id, file_id, kind, parent_scope_id, start_byte, end_byte FROM scopes WHERE file_id = ? ORDER BY id",
		fileID)
	if err != nil {
		return nil, fmt.Errorf("scopes by file: %w", err)
	}
	defer rows.Close()
	var scopes []*Scope
	for rows.Next() {
		sc := &Scope{}
		if err := rows.Scan(&sc.ID, &sc.FileID, &sc.Kind, &sc.ParentScopeID, &sc.StartByte, &sc.EndByte); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}

// --- Ref operations ---

const RefCols = `id, file_id, scope_id, enclosing_symbol_id, name, qualifier, context,
	start_byte, end_byte, start_line, start_col, fail_reason`

func (s *Store) scanRef(scanner interface{ Scan(...any) error }) (*Ref, error) {
	r := &Ref{}
	err := scanner.Scan(
		&r.ID, &r.FileID, &r.ScopeID, &r.EnclosingSymbolID, &r.Name, &r.Qualifier, &r.Context,
		&r.StartByte, &r.EndByte, &r.StartLine, &r.StartCol, &r.FailReason,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) queryRefs(query string, args ...any) ([]*Ref, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []*Ref
	for rows.Next() {
		r, err := s.scanRef(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func (s *Store) RefByID(id int64) (*Ref, error) {
	r, err := s.scanRef(s.db.QueryRow("SELECT "+RefCols+" FROM refs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ref by id: %w", err)
	}
	return r, nil
}

func (s *Store) RefsByFile(fileID int64) ([]*Ref, error) {
	refs, err := s.queryRefs("SELECT "+RefCols+" FROM refs WHERE file_id = ? ORDER BY start_byte", fileID)
	if err != nil {
		return nil, fmt.Errorf("refs by file: %w", err)
	}
	return refs, nil
}

// UnresolvedRefs returns candidates with no resolution row, across the
// whole graph, the retry backlog for incremental passes.
func (s *Store) UnresolvedRefs() ([]*Ref, error) {
	refs, err := s.queryRefs(
		`SELECT ` + RefCols + ` FROM refs
		 WHERE id NOT IN (SELECT ref_id FROM resolved_refs)
		 ORDER BY file_id, start_byte`)
	if err != nil {
		return nil, fmt.Errorf("unresolved refs: %w", err)
	}
	return refs, nil
}

// SetRefFailReason records why resolution gave up on a candidate.
func (s *Store) SetRefFailReason(refID int64, reason string) error {
	if _, err := s.db.Exec("UPDATE refs SET fail_reason = ? WHERE id = ?", reason, refID); err != nil {
		return fmt.Errorf("set fail reason: %w", err)
	}
	return nil
}

// --- Import operations ---

const importCols = `id, file_id, source, imported_name, local_alias, kind,
	start_byte, end_byte, name_start, name_end`

func (s *Store) scanImport(scanner interface{ Scan(...any) error }) (*Import, error) {
	imp := &Import{}
	err := scanner.Scan(
		&imp.ID, &imp.FileID, &imp.Source, &imp.ImportedName, &imp.LocalAlias, &imp.Kind,
		&imp.StartByte, &imp.EndByte, &imp.NameStart, &imp.NameEnd,
	)
	if err != nil {
		return nil, err
	}
	return imp, nil
}

func (s *Store) queryImports(query string, args ...any) ([]*Import, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var imports []*Import
	for rows.Next() {
		imp, err := s.scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

func (s *Store) ImportsByFile(fileID int64) ([]*Import, error) {
	imports, err := s.queryImports("SELECT "+importCols+" FROM imports WHERE file_id = ? ORDER BY start_byte", fileID)
	if err != nil {
		return nil, fmt.Errorf("imports by file: %w", err)
	}
	return imports, nil
}

func (s *Store) ImportByID(id int64) (*Import, error) {
	imp, err := s.scanImport(s.db.QueryRow("SELECT "+importCols+" FROM imports WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("import by id: %w", err)
	}
	return imp, nil
}

func (s *Store) ImportsBySource(source string) ([]*Import, error) {
	imports, err := s.queryImports("SELECT "+importCols+" FROM imports WHERE source = ? ORDER BY file_id", source)
	if err != nil {
		return nil, fmt.Errorf("imports by source: %w", err)
	}
	return imports, nil
}

// --- Reexport operations ---

func (s *Store) ReexportsByFile(fileID int64) ([]*Reexport, error) {
	rows, err := s.db.Query(
		"SELECT id, file_id, source, exported_name, start_byte, end_byte FROM reexports WHERE file_id = ? ORDER BY start_byte",
		fileID)
	if err != nil {
		return nil, fmt.Errorf("reexports by file: %w", err)
	}
	defer rows.Close()
	var res []*Reexport
	for rows.Next() {
		re := &Reexport{}
		if err := rows.Scan(&re.ID, &re.FileID, &re.Source, &re.ExportedName, &re.StartByte, &re.EndByte); err != nil {
			return nil, fmt.Errorf("scan reexport: %w", err)
		}
		res = append(res, re)
	}
	return res, rows.Err()
}
