package graft

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/graft/internal/resolve"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ".graft.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
languages: [python, go]
store_path: .graft/index.db
hop_limit: 8
tie_break: last-decl
move_reexports: true
import_overrides:
  legacy: src/compat/legacy.py
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "go"}, cfg.Languages)
	assert.Equal(t, ".graft/index.db", cfg.StorePath)
	assert.Equal(t, 8, cfg.HopLimit)
	assert.Equal(t, "last-decl", cfg.TieBreak)
	assert.True(t, cfg.MoveReexports)
	assert.Equal(t, "src/compat/legacy.py", cfg.ImportOverrides["legacy"])
}

func TestLoadConfig_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ".graft.yml")
	require.NoError(t, os.WriteFile(path, []byte("languages: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfig_ResolverMapping(t *testing.T) {
	t.Parallel()
	cfg := Config{
		HopLimit:        8,
		TieBreak:        "last-decl",
		ImportOverrides: map[string]string{"m": "a/m.py"},
	}
	rc := cfg.resolverConfig()
	assert.Equal(t, 8, rc.HopLimit)
	assert.Equal(t, resolve.PolicyLastDecl, rc.TieBreak)
	assert.Equal(t, "a/m.py", rc.ImportOverrides["m"])
}

func TestConfig_ParallelDefault(t *testing.T) {
	t.Parallel()
	assert.True(t, Config{}.parallel())

	off := false
	assert.False(t, Config{Parallel: &off}.parallel())
}
