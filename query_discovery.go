package graft

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/graft/internal/store"
)

// qualifiedSymbolCols prefixes the symbol column list with a table
// alias for joined queries.
func qualifiedSymbolCols(alias string) string {
	cols := strings.Split(store.SymbolCols, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// UnresolvedRefs returns every reference candidate the resolver could
// not bind, across all files. FailReason distinguishes candidates that
// tripped the re-export cycle guard from plain misses.
func (q *QueryBuilder) UnresolvedRefs() ([]*Ref, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.store.UnresolvedRefs()
}

// AmbiguousRefs returns references bound to more than one candidate
// target, with every candidate binding included.
func (q *QueryBuilder) AmbiguousRefs() ([]*ResolvedRef, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	rows, err := q.store.DB().Query(
		`SELECT id, ref_id, target_symbol_id, kind FROM resolved_refs
		 WHERE kind = 'ambiguous' ORDER BY ref_id, target_symbol_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ambiguous refs: %w", err)
	}
	defer rows.Close()

	var out []*ResolvedRef
	for rows.Next() {
		rr := &ResolvedRef{}
		if err := rows.Scan(&rr.ID, &rr.RefID, &rr.TargetSymbolID, &rr.Kind); err != nil {
			return nil, fmt.Errorf("ambiguous refs: scan: %w", err)
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

// ImportCycles finds cycles in the file-level import graph, using
// resolved import bindings so only imports that actually point inside
// the indexed codebase participate. Each cycle is a list of file paths;
// every cycle is reported once, starting from its smallest path.
func (q *QueryBuilder) ImportCycles() ([][]string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	rows, err := q.store.DB().Query(
		`SELECT DISTINCT i.file_id, ib.target_file_id
		 FROM import_bindings ib JOIN imports i ON i.id = ib.import_id
		 WHERE i.file_id != ib.target_file_id
		 ORDER BY i.file_id, ib.target_file_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("import cycles: %w", err)
	}
	defer rows.Close()

	edges := make(map[int64][]int64)
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("import cycles: scan: %w", err)
		}
		edges[from] = append(edges[from], to)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("import cycles: rows: %w", err)
	}

	paths := make(map[int64]string)
	files, err := q.store.AllFiles()
	if err != nil {
		return nil, fmt.Errorf("import cycles: list files: %w", err)
	}
	for _, f := range files {
		paths[f.ID] = f.Path
	}

	// DFS with an explicit on-stack set; each back edge closes a cycle.
	var cycles [][]string
	seenCycle := make(map[string]bool)
	state := make(map[int64]int) // 0 unvisited, 1 on stack, 2 done
	var stack []int64

	var visit func(id int64)
	visit = func(id int64) {
		state[id] = 1
		stack = append(stack, id)
		for _, to := range edges[id] {
			switch state[to] {
			case 0:
				visit(to)
			case 1:
				// Slice the stack from the first occurrence of to.
				start := 0
				for i, sid := range stack {
					if sid == to {
						start = i
						break
					}
				}
				cycle := make([]string, 0, len(stack)-start)
				for _, sid := range stack[start:] {
					cycle = append(cycle, paths[sid])
				}
				cycles = append(cycles, canonicalCycle(cycle, seenCycle))
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = 2
	}

	var roots []int64
	for id := range edges {
		roots = append(roots, id)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	for _, id := range roots {
		if state[id] == 0 {
			visit(id)
		}
	}

	// Drop duplicates flagged as nil by canonicalCycle.
	var out [][]string
	for _, c := range cycles {
		if c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

// canonicalCycle rotates a cycle so it starts at its smallest path and
// returns nil if that canonical form was already reported.
func canonicalCycle(cycle []string, seen map[string]bool) []string {
	if len(cycle) == 0 {
		return nil
	}
	min := 0
	for i, p := range cycle {
		if p < cycle[min] {
			min = i
		}
	}
	rotated := append(append([]string(nil), cycle[min:]...), cycle[:min]...)
	key := fmt.Sprint(rotated)
	if seen[key] {
		return nil
	}
	seen[key] = true
	return rotated
}

// UnusedSymbols returns exported symbols that no resolved reference
// targets, ordered by file path then position. Parameters and local
// variables are excluded; unexported symbols are reported only when
// includeUnexported is set.
func (q *QueryBuilder) UnusedSymbols(includeUnexported bool) ([]*Symbol, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	query := `SELECT ` + qualifiedSymbolCols("s") + `
		 FROM symbols s JOIN files f ON f.id = s.file_id
		 WHERE s.kind NOT IN ('parameter')
		   AND s.id NOT IN (SELECT target_symbol_id FROM resolved_refs)`
	if !includeUnexported {
		query += ` AND s.exported`
	}
	query += ` ORDER BY f.path, s.start_byte`

	rows, err := q.store.DB().Query(query)
	if err != nil {
		return nil, fmt.Errorf("unused symbols: %w", err)
	}
	defer rows.Close()

	var out []*Symbol
	for rows.Next() {
		sym, err := q.store.ScanSymbolRow(rows)
		if err != nil {
			return nil, fmt.Errorf("unused symbols: scan: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// OutlineNode is one entry in a file outline: a symbol and the symbols
// declared inside it.
type OutlineNode struct {
	Symbol   *Symbol
	Children []*OutlineNode
}

// FileOutline returns a file's declarations as a tree, nested by
// enclosing symbol, ordered by position.
func (q *QueryBuilder) FileOutline(path string) ([]*OutlineNode, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	f, err := q.store.FileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("outline: lookup file: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	syms, err := q.store.SymbolsByFile(f.ID)
	if err != nil {
		return nil, fmt.Errorf("outline: %w", err)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i].StartByte < syms[j].StartByte })

	nodes := make(map[int64]*OutlineNode, len(syms))
	var roots []*OutlineNode
	for _, sym := range syms {
		nodes[sym.ID] = &OutlineNode{Symbol: sym}
	}
	for _, sym := range syms {
		node := nodes[sym.ID]
		if sym.ParentSymbolID != nil {
			if parent, ok := nodes[*sym.ParentSymbolID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots, nil
}
