package syntax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageForFile(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path string
		lang string
		ok   bool
	}{
		{"main.go", "go", true},
		{"app.py", "python", true},
		{"types.pyi", "python", true},
		{"index.ts", "typescript", true},
		{"view.tsx", "typescript", true},
		{"app.js", "javascript", true},
		{"mod.mjs", "javascript", true},
		{"README.md", "", false},
		{"Makefile", "", false},
	}
	for _, tc := range cases {
		lang, ok := LanguageForFile(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		assert.Equal(t, tc.lang, lang, tc.path)
	}
}

func TestParse_NodeAccessors(t *testing.T) {
	t.Parallel()
	src := []byte("def f():\n    pass\n")
	tree, err := Parse(context.Background(), "python", src)
	require.NoError(t, err)
	defer tree.Close()

	root := tree.Root()
	require.True(t, root.Valid())
	assert.Equal(t, "module", root.Kind())
	assert.False(t, tree.HasError())

	fn := root.NamedChild(0)
	require.True(t, fn.Valid())
	assert.Equal(t, "function_definition", fn.Kind())

	name := fn.ChildByField("name")
	require.True(t, name.Valid())
	assert.Equal(t, "f", name.Text())

	span := name.Span()
	assert.Equal(t, "f", string(src[span.Start:span.End]))
	assert.EqualValues(t, 0, span.Line)
	assert.EqualValues(t, 4, span.Col)
}

func TestParse_UnsupportedLanguage(t *testing.T) {
	t.Parallel()
	_, err := Parse(context.Background(), "cobol", []byte("x"))
	assert.Error(t, err)
}

func TestParse_ErrorRecovery(t *testing.T) {
	t.Parallel()
	tree, err := Parse(context.Background(), "python", []byte("def broken(:\n\ndef fine():\n    pass\n"))
	require.NoError(t, err)
	defer tree.Close()

	assert.True(t, tree.HasError(), "malformed input still yields a tree")
}

