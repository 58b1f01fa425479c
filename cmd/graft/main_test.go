package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	assert.Equal(t, root, findRepoRoot(root))
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, root, findRepoRoot(deep))
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	// TempDir has no .git anywhere in its ancestry (unless /tmp itself
	// is a repo, which would be unusual).
	dir := t.TempDir()
	assert.Equal(t, dir, findRepoRoot(dir))
}

func TestResolveDBPath(t *testing.T) {
	root := t.TempDir()

	flagDB = ""
	assert.Equal(t, filepath.Join(root, ".graft", "index.db"), resolveDBPath(root))

	flagDB = "custom.db"
	assert.Equal(t, filepath.Join(root, "custom.db"), resolveDBPath(root))

	abs := filepath.Join(t.TempDir(), "abs.db")
	flagDB = abs
	assert.Equal(t, abs, resolveDBPath(root))

	flagDB = ""
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.Error(t, validateFormat("xml"))
}

func TestOutput_JSON(t *testing.T) {
	prev := flagFormat
	flagFormat = "json"
	defer func() { flagFormat = prev }()

	var buf bytes.Buffer
	syms := []CLISymbol{{ID: 1, Name: "helper", Kind: "function", Exported: true, File: "util.py", Line: 0}}
	require.NoError(t, output(&buf, syms, func() {}))

	var decoded []CLISymbol
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, syms, decoded)
}

func TestOutput_Text(t *testing.T) {
	prev := flagFormat
	flagFormat = "text"
	defer func() { flagFormat = prev }()

	var buf bytes.Buffer
	syms := []CLISymbol{{ID: 1, Name: "helper", Kind: "function", File: "util.py"}}
	require.NoError(t, output(&buf, syms, func() { formatSymbolsText(&buf, syms) }))

	assert.Contains(t, buf.String(), "helper")
	assert.Contains(t, buf.String(), "function")
}

func TestFormatCyclesText(t *testing.T) {
	var buf bytes.Buffer
	formatCyclesText(&buf, [][]string{{"a.py", "b.py"}})
	assert.Contains(t, buf.String(), "a.py")
	assert.Contains(t, buf.String(), "b.py")
}
