package resolve

import "github.com/jward/graft/internal/store"

// lookupLexical walks the scope chain from scopeID outward and returns
// the declarations of name in the nearest scope that has any. refStart
// is unused for hoisting languages but kept so a stricter
// declared-before-use rule could filter; the engine's languages all
// hoist to their scope, so every declaration in scope is visible.
func (r *Resolver) lookupLexical(fc *fileContext, scopeID int64, name string, refStart int64) ([]*store.Symbol, error) {
	cur := scopeID
	for {
		syms, err := r.store.SymbolsInScope(cur, name)
		if err != nil {
			return nil, err
		}
		if len(syms) > 0 {
			return syms, nil
		}
		sc, ok := fc.scopes[cur]
		if !ok || sc.ParentScopeID == nil {
			return nil, nil
		}
		cur = *sc.ParentScopeID
	}
}

// LookupVisible reports the declarations of name visible from a scope,
// walking the chain to file scope. Used by the mutation engine for
// rename conflict checks; import-introduced names are file-wide and
// checked separately against the file's import list.
func (r *Resolver) LookupVisible(fileID, scopeID int64, name string) ([]*store.Symbol, error) {
	fc, err := r.loadFileContext(fileID)
	if err != nil {
		return nil, err
	}
	return r.lookupLexical(fc, scopeID, name, 0)
}
