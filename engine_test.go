package graft

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree lays fixture files out under a fresh temp dir and returns
// its path. Keys are relative paths.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// indexTree indexes a fixture tree and resolves it.
func indexTree(t *testing.T, files map[string]string, opts ...Option) (*Engine, string) {
	t.Helper()
	dir := writeTree(t, files)
	e := newEngine(t, opts...)
	require.NoError(t, e.IndexDirectory(context.Background(), dir))
	require.NoError(t, e.Resolve(context.Background()))
	return e, dir
}

func onlySymbol(t *testing.T, e *Engine, name string) *Symbol {
	t.Helper()
	syms, err := e.Query().SymbolsByName(name)
	require.NoError(t, err)
	require.Len(t, syms, 1, "expected exactly one symbol named %q", name)
	return syms[0]
}

const utilPy = "def helper():\n    return 1\n"
const mainPy = "from util import helper\n\nhelper()\n"

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	e := newEngine(t)

	files, err := e.Query().Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestIndexAndResolve_CrossFile(t *testing.T) {
	t.Parallel()
	e, dir := indexTree(t, map[string]string{
		"util.py": utilPy,
		"main.py": mainPy,
	})

	helper := onlySymbol(t, e, "helper")
	assert.Equal(t, "function", helper.Kind)
	assert.True(t, helper.Exported)

	usages, err := e.Query().UsagesOf(helper.ID)
	require.NoError(t, err)
	// The import clause name and the call site both bind.
	require.Len(t, usages, 2)
	for _, u := range usages {
		assert.Equal(t, filepath.Join(dir, "main.py"), u.File)
	}

	unresolved, err := e.Query().UnresolvedRefs()
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	errs, err := e.CheckIntegrity()
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestIndexFiles_SkipsUnsupported(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{"notes.txt": "hello"})
	e := newEngine(t)

	require.NoError(t, e.IndexFiles(context.Background(), []string{filepath.Join(dir, "notes.txt")}))

	files, err := e.Query().Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestIndexFiles_UnchangedFileKeepsIdentity(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{"util.py": utilPy})
	e := newEngine(t)
	path := filepath.Join(dir, "util.py")

	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))
	require.NoError(t, e.Resolve(context.Background()))
	before := onlySymbol(t, e, "helper")

	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))
	require.NoError(t, e.Resolve(context.Background()))
	after := onlySymbol(t, e, "helper")

	assert.Equal(t, before.ID, after.ID, "unchanged content is not reindexed")
}

func TestIndexFiles_ReindexesChangedContent(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{"util.py": utilPy})
	e := newEngine(t)
	path := filepath.Join(dir, "util.py")

	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))
	require.NoError(t, e.Resolve(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("def helper2():\n    return 2\n"), 0o644))
	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))
	require.NoError(t, e.Resolve(context.Background()))

	old, err := e.Query().SymbolsByName("helper")
	require.NoError(t, err)
	assert.Empty(t, old)
	onlySymbol(t, e, "helper2")
}

func TestResolve_BacklogRetriesWhenDependencyArrives(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{"main.py": mainPy})
	e := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.IndexFiles(ctx, []string{filepath.Join(dir, "main.py")}))
	require.NoError(t, e.Resolve(ctx))

	unresolved, err := e.Query().UnresolvedRefs()
	require.NoError(t, err)
	assert.NotEmpty(t, unresolved, "helper has no definition yet")

	utilPath := filepath.Join(dir, "util.py")
	require.NoError(t, os.WriteFile(utilPath, []byte(utilPy), 0o644))
	require.NoError(t, e.IndexFiles(ctx, []string{utilPath}))
	require.NoError(t, e.Resolve(ctx))

	unresolved, err = e.Query().UnresolvedRefs()
	require.NoError(t, err)
	assert.Empty(t, unresolved, "backlog re-resolves once the definition exists")

	helper := onlySymbol(t, e, "helper")
	usages, err := e.Query().UsagesOf(helper.ID)
	require.NoError(t, err)
	assert.Len(t, usages, 2)
}

func TestRemoveFile_OrphansDependentRefs(t *testing.T) {
	t.Parallel()
	e, dir := indexTree(t, map[string]string{
		"util.py": utilPy,
		"main.py": mainPy,
	})
	ctx := context.Background()

	require.NoError(t, e.RemoveFile(ctx, filepath.Join(dir, "util.py")))
	require.NoError(t, e.Resolve(ctx))

	syms, err := e.Query().SymbolsByName("helper")
	require.NoError(t, err)
	assert.Empty(t, syms)

	unresolved, err := e.Query().UnresolvedRefs()
	require.NoError(t, err)
	assert.NotEmpty(t, unresolved)

	errs, err := e.CheckIntegrity()
	require.NoError(t, err)
	assert.Empty(t, errs, "no dangling edges survive a file removal")
}

func TestIndexDirectory_WalksSupportedFilesOnly(t *testing.T) {
	t.Parallel()
	e, _ := indexTree(t, map[string]string{
		"util.py":    utilPy,
		"main.py":    mainPy,
		"readme.md":  "# docs\n",
		"sub/mod.py": "def sub_helper():\n    pass\n",
	})

	files, err := e.Query().Files()
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestWithLanguages_FiltersExtraction(t *testing.T) {
	t.Parallel()
	e, _ := indexTree(t, map[string]string{
		"util.py": utilPy,
		"app.js":  "function jsHelper() {}\n",
	}, WithLanguages("python"))

	files, err := e.Query().Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "python", files[0].Language)
}

func TestIndexFiles_SerialMatchesParallel(t *testing.T) {
	t.Parallel()
	fixtures := map[string]string{
		"util.py": utilPy,
		"main.py": mainPy,
	}

	parallel, _ := indexTree(t, fixtures)
	serial, _ := indexTree(t, fixtures, WithParallel(false))

	for _, e := range []*Engine{parallel, serial} {
		helper := onlySymbol(t, e, "helper")
		usages, err := e.Query().UsagesOf(helper.ID)
		require.NoError(t, err)
		assert.Len(t, usages, 2)
	}
}

func TestStorePath_PersistsAcrossEngines(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{"util.py": utilPy})
	dbPath := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	e1 := newEngine(t, WithStorePath(dbPath))
	require.NoError(t, e1.IndexDirectory(ctx, dir))
	require.NoError(t, e1.Resolve(ctx))
	require.NoError(t, e1.Close())

	e2 := newEngine(t, WithStorePath(dbPath))
	onlySymbol(t, e2, "helper")
}

func TestIndexFiles_ReindexKeepsFileIdentity(t *testing.T) {
	t.Parallel()
	e, dir := indexTree(t, map[string]string{"util.py": utilPy})
	ctx := context.Background()
	path := filepath.Join(dir, "util.py")

	before, err := e.Query().FileByPath(path)
	require.NoError(t, err)
	require.NotNil(t, before)

	require.NoError(t, os.WriteFile(path, []byte("def helper():\n    return 2\n"), 0o644))
	require.NoError(t, e.IndexFiles(ctx, []string{path}))

	after, err := e.Query().FileByPath(path)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, before.ID, after.ID, "a reindexed file keeps its identity")
	assert.NotEqual(t, before.Hash, after.Hash)
}

// resolutionSnapshot flattens a graph's resolution state into comparable
// strings, independent of rowids.
func resolutionSnapshot(t *testing.T, e *Engine) []string {
	t.Helper()
	files, err := e.store.AllFiles()
	require.NoError(t, err)
	var out []string
	for _, f := range files {
		refs, err := e.store.RefsByFile(f.ID)
		require.NoError(t, err)
		for _, ref := range refs {
			resolved, err := e.store.ResolvedRefsByRef(ref.ID)
			require.NoError(t, err)
			if len(resolved) == 0 {
				out = append(out, fmt.Sprintf("unresolved %s %s@%d", filepath.Base(f.Path), ref.Name, ref.StartByte))
				continue
			}
			for _, rr := range resolved {
				target, err := e.store.SymbolByID(rr.TargetSymbolID)
				require.NoError(t, err)
				require.NotNil(t, target)
				targetFile, err := e.store.FileByID(target.FileID)
				require.NoError(t, err)
				out = append(out, fmt.Sprintf("%s %s@%d -> %s.%s %s",
					filepath.Base(f.Path), ref.Name, ref.StartByte,
					filepath.Base(targetFile.Path), target.Name, rr.Kind))
			}
		}
	}
	sort.Strings(out)
	return out
}

func TestResolve_IncrementalMatchesFullReanalysis(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"a.py": "def f():\n    return 1\n\ndef g():\n    return 2\n",
		"b.py": "from a import f\n\nf()\n",
		"c.py": "from a import g\n\ng()\n",
	}
	e, dir := indexTree(t, files)
	ctx := context.Background()

	// g disappears and h takes its place: b.py is untouched, c.py's
	// bindings go stale, and only a.py is re-fed to the engine.
	changed := "def f():\n    return 1\n\ndef h():\n    return 2\n"
	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))
	require.NoError(t, e.IndexFiles(ctx, []string{path}))
	require.NoError(t, e.Resolve(ctx))

	fresh := newEngine(t)
	require.NoError(t, fresh.IndexDirectory(ctx, dir))
	require.NoError(t, fresh.Resolve(ctx))

	assert.Equal(t, resolutionSnapshot(t, fresh), resolutionSnapshot(t, e),
		"an incremental pass converges on the same graph as a full re-analysis")
}
