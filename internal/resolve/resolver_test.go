package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/graft/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(store.MemoryPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func addFile(t *testing.T, s *store.Store, path, module string, rows *store.GraphRows) (*store.File, []int64) {
	t.Helper()
	f := &store.File{Path: path, Language: "python", Module: module, Hash: path, LastIndexed: time.Now()}
	_, err := s.InsertFile(f)
	require.NoError(t, err)
	symbolIDs, err := s.InsertGraph(f.ID, rows)
	require.NoError(t, err)
	return f, symbolIDs
}

func fileScope() store.ScopeRow {
	return store.ScopeRow{Kind: "file", ParentIndex: -1, StartByte: 0, EndByte: 1000}
}

func resolveAll(t *testing.T, s *store.Store, cfg Config) {
	t.Helper()
	r := New(s, cfg)
	require.NoError(t, r.ResolveFiles(context.Background(), nil))
}

func targetsOf(t *testing.T, s *store.Store, refID int64) []int64 {
	t.Helper()
	resolved, err := s.ResolvedRefsByRef(refID)
	require.NoError(t, err)
	var ids []int64
	for _, rr := range resolved {
		ids = append(ids, rr.TargetSymbolID)
	}
	return ids
}

func TestResolve_LexicalNearestScopeWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// x declared at file scope and again inside a function; the use in
	// the function binds to the inner declaration.
	_, symbolIDs := addFile(t, s, "m.py", "m", &store.GraphRows{
		Scopes: []store.ScopeRow{
			fileScope(),
			{Kind: "function", ParentIndex: 0, StartByte: 100, EndByte: 300},
		},
		Symbols: []store.SymbolRow{
			{Name: "x", Kind: "variable", ScopeIndex: 0, ParentIndex: -1, StartByte: 10, EndByte: 15, NameStart: 10, NameEnd: 11},
			{Name: "x", Kind: "variable", ScopeIndex: 1, ParentIndex: -1, StartByte: 120, EndByte: 125, NameStart: 120, NameEnd: 121},
		},
		Refs: []store.RefRow{
			{Name: "x", Context: "name", ScopeIndex: 1, EnclosingIndex: -1, StartByte: 200, EndByte: 201},
			{Name: "x", Context: "name", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 400, EndByte: 401},
		},
	})

	resolveAll(t, s, Config{})

	f, err := s.FileByPath("m.py")
	require.NoError(t, err)
	refs, err := s.RefsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, []int64{symbolIDs[1]}, targetsOf(t, s, refs[0].ID), "inner use binds to inner x")
	assert.Equal(t, []int64{symbolIDs[0]}, targetsOf(t, s, refs[1].ID), "file-scope use binds to outer x")
}

func TestResolve_NamedImport(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, utilSyms := addFile(t, s, "util.py", "util", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
		},
	})

	main, _ := addFile(t, s, "main.py", "main", &store.GraphRows{
		Scopes:  []store.ScopeRow{fileScope()},
		Imports: []store.ImportRow{{Source: "util", ImportedName: "helper", Kind: "named", StartByte: 0, EndByte: 23}},
		Refs: []store.RefRow{
			{Name: "helper", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 30, EndByte: 36},
		},
	})

	resolveAll(t, s, Config{})

	refs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{utilSyms[0]}, targetsOf(t, s, refs[0].ID))

	resolved, err := s.ResolvedRefsByRef(refs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, store.ResolveImport, resolved[0].Kind)

	// The import clause itself got a binding row.
	imports, err := s.ImportsByFile(main.ID)
	require.NoError(t, err)
	bindings, err := s.ImportBindingsByImport(imports[0].ID)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	require.NotNil(t, bindings[0].TargetSymbolID)
	assert.Equal(t, utilSyms[0], *bindings[0].TargetSymbolID)
}

func TestResolve_LexicalShadowsImport(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	addFile(t, s, "util.py", "util", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
		},
	})

	main, mainSyms := addFile(t, s, "main.py", "main", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", ScopeIndex: 0, ParentIndex: -1, StartByte: 30, EndByte: 70, NameStart: 34, NameEnd: 40},
		},
		Imports: []store.ImportRow{{Source: "util", ImportedName: "helper", Kind: "named", StartByte: 0, EndByte: 23}},
		Refs: []store.RefRow{
			{Name: "helper", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 80, EndByte: 86},
		},
	})

	resolveAll(t, s, Config{})

	refs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{mainSyms[0]}, targetsOf(t, s, refs[0].ID),
		"a local declaration shadows the import")
}

func TestResolve_QualifiedModuleAccess(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, utilSyms := addFile(t, s, "util.py", "util", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
			{Name: "_secret", Kind: "function", ScopeIndex: 0, ParentIndex: -1, StartByte: 50, EndByte: 90, NameStart: 54, NameEnd: 61},
		},
	})

	main, _ := addFile(t, s, "main.py", "main", &store.GraphRows{
		Scopes:  []store.ScopeRow{fileScope()},
		Imports: []store.ImportRow{{Source: "util", Kind: "module", StartByte: 0, EndByte: 11}},
		Refs: []store.RefRow{
			{Name: "helper", Qualifier: "util", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 20, EndByte: 26},
			{Name: "_secret", Qualifier: "util", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 40, EndByte: 47},
		},
	})

	resolveAll(t, s, Config{})

	refs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{utilSyms[0]}, targetsOf(t, s, refs[0].ID))
	assert.Empty(t, targetsOf(t, s, refs[1].ID), "unexported names are not importable")
}

func TestResolve_ReexportChain(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// core declares f; shim re-exports it; main imports from shim.
	_, coreSyms := addFile(t, s, "core.py", "core", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "f", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 30, NameStart: 4, NameEnd: 5},
		},
	})
	addFile(t, s, "shim.py", "shim", &store.GraphRows{
		Scopes:    []store.ScopeRow{fileScope()},
		Reexports: []store.ReexportRow{{Source: "core", ExportedName: "f", StartByte: 0, EndByte: 20}},
	})
	main, _ := addFile(t, s, "main.py", "main", &store.GraphRows{
		Scopes:  []store.ScopeRow{fileScope()},
		Imports: []store.ImportRow{{Source: "shim", ImportedName: "f", Kind: "named", StartByte: 0, EndByte: 18}},
		Refs: []store.RefRow{
			{Name: "f", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 25, EndByte: 26},
		},
	})

	resolveAll(t, s, Config{})

	refs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{coreSyms[0]}, targetsOf(t, s, refs[0].ID),
		"the chain ends at the declaring module")
}

func TestResolve_PassThroughNamedImport(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// core declares f; hub does "from core import f"; main imports f
	// from hub. Named imports re-export implicitly.
	_, coreSyms := addFile(t, s, "core.py", "core", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "f", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 30, NameStart: 4, NameEnd: 5},
		},
	})
	addFile(t, s, "hub.py", "hub", &store.GraphRows{
		Scopes:  []store.ScopeRow{fileScope()},
		Imports: []store.ImportRow{{Source: "core", ImportedName: "f", Kind: "named", StartByte: 0, EndByte: 18}},
	})
	main, _ := addFile(t, s, "main.py", "main", &store.GraphRows{
		Scopes:  []store.ScopeRow{fileScope()},
		Imports: []store.ImportRow{{Source: "hub", ImportedName: "f", Kind: "named", StartByte: 0, EndByte: 17}},
		Refs: []store.RefRow{
			{Name: "f", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 25, EndByte: 26},
		},
	})

	resolveAll(t, s, Config{})

	refs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{coreSyms[0]}, targetsOf(t, s, refs[0].ID))
}

func TestResolve_CycleGuard(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// a and b re-export f from each other; nobody declares it.
	addFile(t, s, "a.py", "a", &store.GraphRows{
		Scopes:    []store.ScopeRow{fileScope()},
		Reexports: []store.ReexportRow{{Source: "b", ExportedName: "f", StartByte: 0, EndByte: 17}},
	})
	addFile(t, s, "b.py", "b", &store.GraphRows{
		Scopes:    []store.ScopeRow{fileScope()},
		Reexports: []store.ReexportRow{{Source: "a", ExportedName: "f", StartByte: 0, EndByte: 17}},
	})
	main, _ := addFile(t, s, "main.py", "main", &store.GraphRows{
		Scopes:  []store.ScopeRow{fileScope()},
		Imports: []store.ImportRow{{Source: "a", ImportedName: "f", Kind: "named", StartByte: 0, EndByte: 16}},
		Refs: []store.RefRow{
			{Name: "f", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 25, EndByte: 26},
		},
	})

	resolveAll(t, s, Config{HopLimit: 4})

	refs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	assert.Empty(t, targetsOf(t, s, refs[0].ID))
	assert.Equal(t, FailCycleGuard, refs[0].FailReason)
}

func TestResolve_AmbiguousModule(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// Two files answer to module "util"; neither is in the importer's
	// directory, so both candidates are recorded as ambiguous.
	_, aSyms := addFile(t, s, "a/util.py", "util", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
		},
	})
	_, bSyms := addFile(t, s, "b/util.py", "util", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
		},
	})
	main, _ := addFile(t, s, "c/main.py", "main", &store.GraphRows{
		Scopes:  []store.ScopeRow{fileScope()},
		Imports: []store.ImportRow{{Source: "util", ImportedName: "helper", Kind: "named", StartByte: 0, EndByte: 23}},
		Refs: []store.RefRow{
			{Name: "helper", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 30, EndByte: 36},
		},
	})

	resolveAll(t, s, Config{})

	refs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	targets := targetsOf(t, s, refs[0].ID)
	assert.ElementsMatch(t, []int64{aSyms[0], bSyms[0]}, targets)

	resolved, err := s.ResolvedRefsByRef(refs[0].ID)
	require.NoError(t, err)
	for _, rr := range resolved {
		assert.Equal(t, store.ResolveAmbiguous, rr.Kind)
	}

	// Ambiguous bindings never derive call edges.
	edges, err := s.AllCallEdges()
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestResolve_SameDirectoryPreferred(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, localSyms := addFile(t, s, "a/util.py", "util", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
		},
	})
	addFile(t, s, "b/util.py", "util", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
		},
	})
	main, _ := addFile(t, s, "a/main.py", "main", &store.GraphRows{
		Scopes:  []store.ScopeRow{fileScope()},
		Imports: []store.ImportRow{{Source: "util", ImportedName: "helper", Kind: "named", StartByte: 0, EndByte: 23}},
		Refs: []store.RefRow{
			{Name: "helper", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 30, EndByte: 36},
		},
	})

	resolveAll(t, s, Config{})

	refs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{localSyms[0]}, targetsOf(t, s, refs[0].ID),
		"the candidate in the importer's directory wins")
}

func TestResolve_ImportOverride(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	addFile(t, s, "a/util.py", "util", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
		},
	})
	_, bSyms := addFile(t, s, "b/util.py", "util", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
		},
	})
	main, _ := addFile(t, s, "a/main.py", "main", &store.GraphRows{
		Scopes:  []store.ScopeRow{fileScope()},
		Imports: []store.ImportRow{{Source: "util", ImportedName: "helper", Kind: "named", StartByte: 0, EndByte: 23}},
		Refs: []store.RefRow{
			{Name: "helper", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 30, EndByte: 36},
		},
	})

	resolveAll(t, s, Config{ImportOverrides: map[string]string{"util": "b/util.py"}})

	refs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{bSyms[0]}, targetsOf(t, s, refs[0].ID),
		"overrides beat directory preference")
}

func TestResolve_TieBreakPolicies(t *testing.T) {
	t.Parallel()

	rows := func() *store.GraphRows {
		return &store.GraphRows{
			Scopes: []store.ScopeRow{fileScope()},
			Symbols: []store.SymbolRow{
				{Name: "f", Kind: "function", ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 30, NameStart: 4, NameEnd: 5},
				{Name: "f", Kind: "function", ScopeIndex: 0, ParentIndex: -1, StartByte: 40, EndByte: 70, NameStart: 44, NameEnd: 45},
			},
			Refs: []store.RefRow{
				{Name: "f", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 80, EndByte: 81},
			},
		}
	}

	t.Run("decl order default", func(t *testing.T) {
		s := newTestStore(t)
		main, syms := addFile(t, s, "m.py", "m", rows())
		resolveAll(t, s, Config{})
		refs, err := s.RefsByFile(main.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{syms[0]}, targetsOf(t, s, refs[0].ID))
	})

	t.Run("last decl", func(t *testing.T) {
		s := newTestStore(t)
		main, syms := addFile(t, s, "m.py", "m", rows())
		resolveAll(t, s, Config{TieBreak: PolicyLastDecl})
		refs, err := s.RefsByFile(main.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{syms[1]}, targetsOf(t, s, refs[0].ID))
	})
}

func TestResolve_DerivedEdges(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	main, syms := addFile(t, s, "m.py", "m", &store.GraphRows{
		Scopes: []store.ScopeRow{
			fileScope(),
			{Kind: "function", ParentIndex: 0, StartByte: 100, EndByte: 200},
			{Kind: "class", ParentIndex: 0, StartByte: 300, EndByte: 400},
		},
		Symbols: []store.SymbolRow{
			{Name: "callee", Kind: "function", ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 50, NameStart: 4, NameEnd: 10},
			{Name: "caller", Kind: "function", ScopeIndex: 0, ParentIndex: -1, StartByte: 100, EndByte: 200, NameStart: 104, NameEnd: 110},
			{Name: "Base", Kind: "class", ScopeIndex: 0, ParentIndex: -1, StartByte: 210, EndByte: 290, NameStart: 216, NameEnd: 220},
			{Name: "Child", Kind: "class", ScopeIndex: 0, ParentIndex: -1, StartByte: 300, EndByte: 400, NameStart: 306, NameEnd: 311},
		},
		Refs: []store.RefRow{
			{Name: "callee", Context: "call", ScopeIndex: 1, EnclosingIndex: 1, StartByte: 150, EndByte: 156},
			{Name: "Base", Context: "base", ScopeIndex: 0, EnclosingIndex: 3, StartByte: 312, EndByte: 316},
		},
	})

	resolveAll(t, s, Config{})

	edges, err := s.CalleesByCaller(syms[1])
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, syms[0], edges[0].CalleeSymbolID)

	supers, err := s.SuperclassEdges(syms[3])
	require.NoError(t, err)
	require.Len(t, supers, 1)
	assert.Equal(t, syms[2], supers[0].ParentSymbolID)

	_ = main
}

func TestResolve_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	addFile(t, s, "util.py", "util", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
		},
	})
	main, _ := addFile(t, s, "main.py", "main", &store.GraphRows{
		Scopes:  []store.ScopeRow{fileScope()},
		Imports: []store.ImportRow{{Source: "util", ImportedName: "helper", Kind: "named", StartByte: 0, EndByte: 23}},
		Refs: []store.RefRow{
			{Name: "helper", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 30, EndByte: 36},
		},
	})

	resolveAll(t, s, Config{})
	refs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	first := targetsOf(t, s, refs[0].ID)

	require.NoError(t, s.DeleteResolutionDataForFiles([]int64{main.ID}))
	resolveAll(t, s, Config{})
	assert.Equal(t, first, targetsOf(t, s, refs[0].ID))

	var count int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM resolved_refs").Scan(&count))
	assert.Equal(t, 1, count, "re-resolution does not duplicate rows")
}

func TestResolve_AliasedImportClauseName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, utilSyms := addFile(t, s, "util.py", "util", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
		},
	})

	// from util import helper as h: the clause carries the original name,
	// use sites carry the alias. Both bind to the same declaration.
	main, _ := addFile(t, s, "main.py", "main", &store.GraphRows{
		Scopes: []store.ScopeRow{fileScope()},
		Imports: []store.ImportRow{
			{Source: "util", ImportedName: "helper", LocalAlias: "h", Kind: "named", StartByte: 0, EndByte: 28, NameStart: 17, NameEnd: 23},
		},
		Refs: []store.RefRow{
			{Name: "helper", Context: "import", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 17, EndByte: 23},
			{Name: "h", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 30, EndByte: 31},
		},
	})

	resolveAll(t, s, Config{})

	refs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, []int64{utilSyms[0]}, targetsOf(t, s, refs[0].ID), "clause name binds under its original name")
	assert.Equal(t, []int64{utilSyms[0]}, targetsOf(t, s, refs[1].ID), "alias use binds through the local name")
}
