package graft

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSRepository_ReadWriteRemove(t *testing.T) {
	t.Parallel()
	repo := OSRepository{}
	path := filepath.Join(t.TempDir(), "sub", "f.py")

	require.NoError(t, repo.Write(path, []byte("x = 1\n")), "write creates parent dirs")

	content, err := repo.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(content))

	require.NoError(t, repo.Remove(path))
	_, err = repo.Read(path)
	assert.Error(t, err)
}

func TestOSRepository_ListFilesHonorsIgnores(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{
		"main.py":                 "x = 1\n",
		"sub/util.py":             "y = 2\n",
		"node_modules/dep/pkg.js": "z = 3\n",
		".hidden/secret.py":       "s = 4\n",
		"build/out.py":            "o = 5\n",
		".gitignore":              "build/\n",
	})

	paths, err := OSRepository{}.ListFiles(dir)
	require.NoError(t, err)

	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		r, relErr := filepath.Rel(dir, p)
		require.NoError(t, relErr)
		rel = append(rel, r)
	}

	assert.Contains(t, rel, "main.py")
	assert.Contains(t, rel, filepath.Join("sub", "util.py"))
	assert.NotContains(t, rel, filepath.Join("node_modules", "dep", "pkg.js"))
	assert.NotContains(t, rel, filepath.Join(".hidden", "secret.py"))
	assert.NotContains(t, rel, filepath.Join("build", "out.py"))
}
