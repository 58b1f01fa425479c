package graft

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/jward/graft/internal/store"
)

// QueryBuilder is the read-only query API over the graph. Every method
// takes the engine's read lock, so queries are safe while another
// goroutine indexes or commits a transaction.
type QueryBuilder struct {
	store *store.Store
	mu    *sync.RWMutex
}

// Location is a source position range for presenting results.
type Location struct {
	File      string
	StartByte int64
	EndByte   int64
	StartLine int
	StartCol  int
}

// SymbolsByName returns every declaration with the given name, across
// all files, in deterministic order.
func (q *QueryBuilder) SymbolsByName(name string) ([]*Symbol, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.store.SymbolsByName(name)
}

// SymbolsInFile returns a file's declarations in position order, or nil
// when the file is not indexed.
func (q *QueryBuilder) SymbolsInFile(path string) ([]*Symbol, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	f, err := q.store.FileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("symbols in file: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	return q.store.SymbolsByFile(f.ID)
}

// SymbolsUnder returns symbols declared in files whose path starts with
// prefix, optionally restricted to one kind (empty kind means all).
func (q *QueryBuilder) SymbolsUnder(prefix, kind string) ([]*Symbol, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	query := `SELECT ` + qualifiedSymbolCols("s") + `
		 FROM symbols s JOIN files f ON f.id = s.file_id
		 WHERE f.path LIKE ? || '%'`
	args := []any{prefix}
	if kind != "" {
		query += ` AND s.kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY f.path, s.start_byte`

	rows, err := q.store.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("symbols under %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []*Symbol
	for rows.Next() {
		sym, err := q.store.ScanSymbolRow(rows)
		if err != nil {
			return nil, fmt.Errorf("symbols under %s: scan: %w", prefix, err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// SymbolByID fetches one symbol, or nil if it is not in the graph.
func (q *QueryBuilder) SymbolByID(id int64) (*Symbol, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.store.SymbolByID(id)
}

// DefinitionAt finds the definition(s) of the name at a position. The
// position must fall inside a reference identifier; line and col are
// 0-based. Several results mean the reference is ambiguous.
func (q *QueryBuilder) DefinitionAt(file string, line, col int) ([]Location, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	f, err := q.store.FileByPath(file)
	if err != nil {
		return nil, fmt.Errorf("definition at: lookup file: %w", err)
	}
	if f == nil {
		return nil, nil
	}

	// Reference identifiers never span lines, so the column range is
	// recoverable from the byte span.
	rows, err := q.store.DB().Query(
		`SELECT id FROM refs
		 WHERE file_id = ? AND start_line = ?
		   AND start_col <= ? AND start_col + (end_byte - start_byte) >= ?
		 ORDER BY id`,
		f.ID, line, col, col,
	)
	if err != nil {
		return nil, fmt.Errorf("definition at: query refs: %w", err)
	}
	defer rows.Close()

	var refIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("definition at: scan ref: %w", err)
		}
		refIDs = append(refIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("definition at: rows: %w", err)
	}

	var locations []Location
	for _, refID := range refIDs {
		resolved, err := q.store.ResolvedRefsByRef(refID)
		if err != nil {
			return nil, fmt.Errorf("definition at: resolve ref %d: %w", refID, err)
		}
		for _, rr := range resolved {
			loc, err := q.symbolLocation(rr.TargetSymbolID)
			if err != nil {
				return nil, fmt.Errorf("definition at: symbol location: %w", err)
			}
			if loc != nil {
				locations = append(locations, *loc)
			}
		}
	}
	return locations, nil
}

// UsagesOf returns the location of every reference bound to the given
// symbol, across all files.
func (q *QueryBuilder) UsagesOf(symbolID int64) ([]Location, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.usagesOfLocked(symbolID)
}

func (q *QueryBuilder) usagesOfLocked(symbolID int64) ([]Location, error) {
	resolved, err := q.store.ResolvedRefsByTarget(symbolID)
	if err != nil {
		return nil, fmt.Errorf("usages of: %w", err)
	}
	var locations []Location
	for _, rr := range resolved {
		loc, err := q.refLocation(rr.RefID)
		if err != nil {
			return nil, fmt.Errorf("usages of: ref location: %w", err)
		}
		if loc != nil {
			locations = append(locations, *loc)
		}
	}
	return locations, nil
}

// CallersOf returns call graph edges where the given symbol is the
// callee. A nil caller means a file-level call site.
func (q *QueryBuilder) CallersOf(symbolID int64) ([]*CallEdge, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.store.CallersByCallee(symbolID)
}

// CalleesOf returns call graph edges where the given symbol is the caller.
func (q *QueryBuilder) CalleesOf(symbolID int64) ([]*CallEdge, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.store.CalleesByCaller(symbolID)
}

// Dependencies returns all imports of the given file.
func (q *QueryBuilder) Dependencies(fileID int64) ([]*Import, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.store.ImportsByFile(fileID)
}

// Dependents returns all imports, across all files, whose source is the
// given string as written.
func (q *QueryBuilder) Dependents(source string) ([]*Import, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.store.ImportsBySource(source)
}

// FileByPath fetches one file record, or nil if the path is not indexed.
func (q *QueryBuilder) FileByPath(path string) (*File, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.store.FileByPath(path)
}

// Files returns every indexed file, ordered by path.
func (q *QueryBuilder) Files() ([]*File, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.store.AllFiles()
}

// symbolLocation resolves a symbol ID to its file path and span.
func (q *QueryBuilder) symbolLocation(symbolID int64) (*Location, error) {
	var fileID, startByte, endByte int64
	var startLine, startCol int
	err := q.store.DB().QueryRow(
		`SELECT file_id, start_byte, end_byte, start_line, start_col
		 FROM symbols WHERE id = ?`, symbolID,
	).Scan(&fileID, &startByte, &endByte, &startLine, &startCol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q.location(fileID, startByte, endByte, startLine, startCol)
}

// refLocation resolves a ref ID to its file path and span.
func (q *QueryBuilder) refLocation(refID int64) (*Location, error) {
	var fileID, startByte, endByte int64
	var startLine, startCol int
	err := q.store.DB().QueryRow(
		`SELECT file_id, start_byte, end_byte, start_line, start_col
		 FROM refs WHERE id = ?`, refID,
	).Scan(&fileID, &startByte, &endByte, &startLine, &startCol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q.location(fileID, startByte, endByte, startLine, startCol)
}

func (q *QueryBuilder) location(fileID, startByte, endByte int64, startLine, startCol int) (*Location, error) {
	var path string
	err := q.store.DB().QueryRow("SELECT path FROM files WHERE id = ?", fileID).Scan(&path)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Location{
		File:      path,
		StartByte: startByte,
		EndByte:   endByte,
		StartLine: startLine,
		StartCol:  startCol,
	}, nil
}
