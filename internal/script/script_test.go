package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/graft/internal/store"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(store.MemoryPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })

	f := &store.File{Path: "util.py", Language: "python", Module: "util", Hash: "h", LastIndexed: time.Now()}
	_, err = s.InsertFile(f)
	require.NoError(t, err)
	_, err = s.InsertGraph(f.ID, &store.GraphRows{
		Scopes: []store.ScopeRow{{Kind: "file", ParentIndex: -1, StartByte: 0, EndByte: 100}},
		Symbols: []store.SymbolRow{
			{Name: "helper", Kind: "function", Exported: true, ScopeIndex: 0, ParentIndex: -1, StartByte: 0, EndByte: 40, NameStart: 4, NameEnd: 10},
		},
		Refs: []store.RefRow{
			{Name: "missing", Context: "call", ScopeIndex: 0, EnclosingIndex: -1, StartByte: 50, EndByte: 57},
		},
	})
	require.NoError(t, err)
	return s
}

func TestRunSource_SymbolsByName(t *testing.T) {
	t.Parallel()
	r := NewRuntime(seedStore(t))

	out, err := r.RunSource(context.Background(), `
syms := symbols_by_name("helper")
len(syms)
`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, out)
}

func TestRunSource_SymbolFields(t *testing.T) {
	t.Parallel()
	r := NewRuntime(seedStore(t))

	out, err := r.RunSource(context.Background(), `
symbols_by_name("helper")[0]["kind"]
`)
	require.NoError(t, err)
	assert.Equal(t, "function", out)
}

func TestRunSource_FileByPath(t *testing.T) {
	t.Parallel()
	r := NewRuntime(seedStore(t))

	out, err := r.RunSource(context.Background(), `
file_by_path("util.py")["module"]
`)
	require.NoError(t, err)
	assert.Equal(t, "util", out)

	out, err = r.RunSource(context.Background(), `
file_by_path("nope.py")
`)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRunSource_UnresolvedRefs(t *testing.T) {
	t.Parallel()
	r := NewRuntime(seedStore(t))

	out, err := r.RunSource(context.Background(), `
unresolved_refs()[0]["name"]
`)
	require.NoError(t, err)
	assert.Equal(t, "missing", out)
}

func TestRunSource_BadArgument(t *testing.T) {
	t.Parallel()
	r := NewRuntime(seedStore(t))

	_, err := r.RunSource(context.Background(), `symbols_by_name(42)`)
	assert.Error(t, err)
}

func TestRunScript_MissingFile(t *testing.T) {
	t.Parallel()
	r := NewRuntime(seedStore(t))

	_, err := r.RunScript(context.Background(), "does/not/exist.risor")
	assert.Error(t, err)
}
