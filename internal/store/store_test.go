package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(MemoryPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestFile inserts a file and returns it with ID set.
func insertTestFile(t *testing.T, s *Store, path, lang, module string) *File {
	t.Helper()
	f := &File{Path: path, Language: lang, Module: module, Hash: "abc123", LastIndexed: time.Now().Truncate(time.Second)}
	id, err := s.InsertFile(f)
	require.NoError(t, err)
	require.Positive(t, id)
	return f
}

// simpleGraph is one file scope, one exported function, and one call
// candidate referring to some name.
func simpleGraph(symName, refName string) *GraphRows {
	return &GraphRows{
		Scopes: []ScopeRow{
			{Kind: "file", ParentIndex: -1, StartByte: 0, EndByte: 100},
			{Kind: "function", ParentIndex: 0, StartByte: 10, EndByte: 50},
		},
		Symbols: []SymbolRow{
			{Name: symName, Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1,
				StartByte: 10, EndByte: 50, NameStart: 14, NameEnd: int64(14 + len(symName))},
		},
		Refs: []RefRow{
			{Name: refName, Context: "call", ScopeIndex: 1, EnclosingIndex: 0, StartByte: 30, EndByte: int64(30 + len(refName))},
		},
	}
}

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	tables := []string{
		"files", "scopes", "symbols", "refs", "imports", "reexports",
		"resolved_refs", "import_bindings", "call_edges", "inherits", "meta",
	}
	for _, table := range tables {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestInsertFile_Lookup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	f := insertTestFile(t, s, "a/b.py", "python", "b")

	byPath, err := s.FileByPath("a/b.py")
	require.NoError(t, err)
	require.NotNil(t, byPath)
	assert.Equal(t, f.ID, byPath.ID)
	assert.Equal(t, "python", byPath.Language)
	assert.Equal(t, "b", byPath.Module)

	byID, err := s.FileByID(f.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "a/b.py", byID.Path)

	missing, err := s.FileByPath("nope.py")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFilesByModule_OrderedByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	insertTestFile(t, s, "z/util.py", "python", "util")
	insertTestFile(t, s, "a/util.py", "python", "util")
	insertTestFile(t, s, "a/other.py", "python", "other")

	files, err := s.FilesByModule("util")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a/util.py", files[0].Path)
	assert.Equal(t, "z/util.py", files[1].Path)
}

func TestInsertGraph_LinksIndexes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	f := insertTestFile(t, s, "m.py", "python", "m")
	symbolIDs, err := s.InsertGraph(f.ID, simpleGraph("handler", "helper"))
	require.NoError(t, err)
	require.Len(t, symbolIDs, 1)

	fileScope, err := s.FileScopeID(f.ID)
	require.NoError(t, err)
	require.Positive(t, fileScope)

	scopes, err := s.ScopesByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	assert.Nil(t, scopes[0].ParentScopeID)
	require.NotNil(t, scopes[1].ParentScopeID)
	assert.Equal(t, fileScope, *scopes[1].ParentScopeID)

	syms, err := s.SymbolsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "handler", syms[0].Name)
	assert.Equal(t, fileScope, syms[0].ScopeID)
	assert.True(t, syms[0].Exported)

	refs, err := s.RefsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "helper", refs[0].Name)
	require.NotNil(t, refs[0].EnclosingSymbolID)
	assert.Equal(t, symbolIDs[0], *refs[0].EnclosingSymbolID)
}

func TestUnresolvedRefs_ExcludesResolved(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	f := insertTestFile(t, s, "m.py", "python", "m")
	symbolIDs, err := s.InsertGraph(f.ID, simpleGraph("handler", "helper"))
	require.NoError(t, err)

	refs, err := s.RefsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)

	unresolved, err := s.UnresolvedRefs()
	require.NoError(t, err)
	require.Len(t, unresolved, 1)

	_, err = s.InsertResolvedRef(&ResolvedRef{RefID: refs[0].ID, TargetSymbolID: symbolIDs[0], Kind: ResolveLexical})
	require.NoError(t, err)

	unresolved, err = s.UnresolvedRefs()
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestSetRefFailReason(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	f := insertTestFile(t, s, "m.py", "python", "m")
	_, err := s.InsertGraph(f.ID, simpleGraph("handler", "helper"))
	require.NoError(t, err)

	refs, err := s.RefsByFile(f.ID)
	require.NoError(t, err)
	require.NoError(t, s.SetRefFailReason(refs[0].ID, "cycle_guard"))

	refs, err = s.RefsByFile(f.ID)
	require.NoError(t, err)
	assert.Equal(t, "cycle_guard", refs[0].FailReason)

	// A resolution reset clears the reason for retry.
	require.NoError(t, s.DeleteResolutionDataForFiles([]int64{f.ID}))
	refs, err = s.RefsByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, refs[0].FailReason)
}

func TestDeleteFileData_CascadesInbound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// util.py declares helper; main.py imports and calls it.
	util := insertTestFile(t, s, "util.py", "python", "util")
	utilSyms, err := s.InsertGraph(util.ID, simpleGraph("helper", "unused"))
	require.NoError(t, err)

	main := insertTestFile(t, s, "main.py", "python", "main")
	mainRows := simpleGraph("main", "helper")
	mainRows.Imports = []ImportRow{{Source: "util", ImportedName: "helper", Kind: "named", StartByte: 0, EndByte: 22}}
	_, err = s.InsertGraph(main.ID, mainRows)
	require.NoError(t, err)

	mainRefs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	_, err = s.InsertResolvedRef(&ResolvedRef{RefID: mainRefs[0].ID, TargetSymbolID: utilSyms[0], Kind: ResolveImport})
	require.NoError(t, err)

	imports, err := s.ImportsByFile(main.ID)
	require.NoError(t, err)
	_, err = s.InsertImportBinding(&ImportBinding{ImportID: imports[0].ID, TargetFileID: util.ID, TargetSymbolID: &utilSyms[0]})
	require.NoError(t, err)

	// Deleting util must drop main's bindings into it, but keep main's
	// extraction data.
	require.NoError(t, s.DeleteFileData(util.ID))
	require.NoError(t, s.DeleteFile(util.ID))

	resolved, err := s.ResolvedRefsByRef(mainRefs[0].ID)
	require.NoError(t, err)
	assert.Empty(t, resolved)

	bindings, err := s.ImportBindingsByImport(imports[0].ID)
	require.NoError(t, err)
	assert.Empty(t, bindings)

	mainRefs, err = s.RefsByFile(main.ID)
	require.NoError(t, err)
	assert.Len(t, mainRefs, 1)

	problems, err := s.CheckIntegrity()
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestBlastQueries(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	util := insertTestFile(t, s, "util.py", "python", "util")
	utilSyms, err := s.InsertGraph(util.ID, simpleGraph("helper", "unrelated"))
	require.NoError(t, err)

	main := insertTestFile(t, s, "main.py", "python", "main")
	mainRows := simpleGraph("main", "helper")
	mainRows.Imports = []ImportRow{{Source: "pkg/util", ImportedName: "helper", Kind: "named"}}
	_, err = s.InsertGraph(main.ID, mainRows)
	require.NoError(t, err)

	mainRefs, err := s.RefsByFile(main.ID)
	require.NoError(t, err)
	_, err = s.InsertResolvedRef(&ResolvedRef{RefID: mainRefs[0].ID, TargetSymbolID: utilSyms[0], Kind: ResolveImport})
	require.NoError(t, err)

	referencing, err := s.FilesReferencingSymbols(utilSyms)
	require.NoError(t, err)
	assert.Equal(t, []int64{main.ID}, referencing)

	// Suffix matching catches "pkg/util" importers of module "util".
	importers, err := s.FilesImportingModule("util")
	require.NoError(t, err)
	assert.Contains(t, importers, main.ID)

	// util's own ref never resolved, so util is in the backlog.
	backlog, err := s.FilesWithUnresolvedRefs()
	require.NoError(t, err)
	assert.Contains(t, backlog, util.ID)
}

func TestMetadata_Upsert(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("k")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("k", "v1"))
	require.NoError(t, s.SetMetadata("k", "v2"))

	v, err = s.GetMetadata("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestComputeSignatureHash_SensitiveToParts(t *testing.T) {
	t.Parallel()

	base := ComputeSignatureHash("f", "function", "int", true)
	assert.Equal(t, base, ComputeSignatureHash("f", "function", "int", true))
	assert.NotEqual(t, base, ComputeSignatureHash("g", "function", "int", true))
	assert.NotEqual(t, base, ComputeSignatureHash("f", "method", "int", true))
	assert.NotEqual(t, base, ComputeSignatureHash("f", "function", "str", true))
	assert.NotEqual(t, base, ComputeSignatureHash("f", "function", "int", false))
}
