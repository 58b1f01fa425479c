package resolve

import (
	"sort"

	"github.com/jward/graft/internal/store"
)

// Policy selects among several equally-ranked candidates for one name in
// one scope (overload sets, conditional redefinitions). All policies are
// deterministic.
type Policy string

const (
	// PolicyDeclOrder picks the earliest declaration in the file. This
	// is the default: it matches how hoisting languages surface the
	// first definition.
	PolicyDeclOrder Policy = "decl-order"
	// PolicyLastDecl picks the latest declaration, matching languages
	// where a later assignment shadows an earlier one at runtime.
	PolicyLastDecl Policy = "last-decl"
)

// pick applies the tie-break policy to a non-empty candidate set.
func pick(syms []*store.Symbol, policy Policy) *store.Symbol {
	if len(syms) == 1 {
		return syms[0]
	}
	ordered := make([]*store.Symbol, len(syms))
	copy(ordered, syms)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].StartByte != ordered[j].StartByte {
			return ordered[i].StartByte < ordered[j].StartByte
		}
		return ordered[i].ID < ordered[j].ID
	})
	if policy == PolicyLastDecl {
		return ordered[len(ordered)-1]
	}
	return ordered[0]
}
