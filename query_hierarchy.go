package graft

import "fmt"

// Superclasses returns the transitive parents of a class or interface
// symbol, nearest first, breadth-first. Cycles in the inheritance data
// terminate rather than loop.
func (q *QueryBuilder) Superclasses(symbolID int64) ([]*Symbol, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.walkHierarchy(symbolID, true)
}

// Subclasses returns the transitive children of a class or interface
// symbol, nearest first, breadth-first.
func (q *QueryBuilder) Subclasses(symbolID int64) ([]*Symbol, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.walkHierarchy(symbolID, false)
}

func (q *QueryBuilder) walkHierarchy(symbolID int64, up bool) ([]*Symbol, error) {
	visited := map[int64]bool{symbolID: true}
	frontier := []int64{symbolID}
	var result []*Symbol

	for len(frontier) > 0 {
		var next []int64
		for _, id := range frontier {
			var targets []int64
			if up {
				edges, err := q.store.SuperclassEdges(id)
				if err != nil {
					return nil, fmt.Errorf("hierarchy: %w", err)
				}
				for _, e := range edges {
					targets = append(targets, e.ParentSymbolID)
				}
			} else {
				edges, err := q.store.SubclassEdges(id)
				if err != nil {
					return nil, fmt.Errorf("hierarchy: %w", err)
				}
				for _, e := range edges {
					targets = append(targets, e.ClassSymbolID)
				}
			}
			for _, target := range targets {
				if visited[target] {
					continue
				}
				visited[target] = true
				sym, err := q.store.SymbolByID(target)
				if err != nil {
					return nil, fmt.Errorf("hierarchy: symbol %d: %w", target, err)
				}
				if sym != nil {
					result = append(result, sym)
					next = append(next, target)
				}
			}
		}
		frontier = next
	}
	return result, nil
}
