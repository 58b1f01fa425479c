package lang

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/graft/internal/syntax"
)

func extractPython(t *testing.T, src string) *FileGraph {
	t.Helper()
	tree, err := syntax.Parse(context.Background(), "python", []byte(src))
	require.NoError(t, err)
	defer tree.Close()
	g, err := NewPython().Extract(tree, "pkg/mod.py")
	require.NoError(t, err)
	return g
}

func symbolNames(g *FileGraph) []string {
	var names []string
	for _, s := range g.Symbols {
		names = append(names, s.Name)
	}
	return names
}

func findSymbol(t *testing.T, g *FileGraph, name string) Symbol {
	t.Helper()
	for _, s := range g.Symbols {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("symbol %q not found in %v", name, symbolNames(g))
	return Symbol{}
}

func refsNamed(g *FileGraph, name string) []Ref {
	var out []Ref
	for _, r := range g.Refs {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

func TestPython_ModuleName(t *testing.T) {
	t.Parallel()
	p := NewPython()
	assert.Equal(t, "util", p.ModuleName("pkg/util.py"))
	assert.Equal(t, "util", p.ModuleName("util.py"))
}

func TestPython_FunctionsAndVisibility(t *testing.T) {
	t.Parallel()
	g := extractPython(t, `
def helper(x, y=1):
    return x + y

def _internal():
    pass
`)

	helper := findSymbol(t, g, "helper")
	assert.Equal(t, KindFunction, helper.Kind)
	assert.True(t, helper.Exported)
	assert.Equal(t, 0, helper.Scope)
	assert.Equal(t, -1, helper.Parent)

	internal := findSymbol(t, g, "_internal")
	assert.False(t, internal.Exported, "leading underscore marks private")

	// Parameters live in the function's own scope.
	x := findSymbol(t, g, "x")
	assert.Equal(t, KindParameter, x.Kind)
	assert.NotEqual(t, 0, x.Scope)
	y := findSymbol(t, g, "y")
	assert.Equal(t, KindParameter, y.Kind)
	assert.Equal(t, x.Scope, y.Scope)
}

func TestPython_NameSpanCoversIdentifierOnly(t *testing.T) {
	t.Parallel()
	src := "def helper():\n    pass\n"
	g := extractPython(t, src)

	helper := findSymbol(t, g, "helper")
	assert.Equal(t, "helper", src[helper.NameSpan.Start:helper.NameSpan.End])
	assert.True(t, helper.Span.Start < helper.NameSpan.Start)
	assert.True(t, helper.Span.End > helper.NameSpan.End)
}

func TestPython_ClassMethodsAndBases(t *testing.T) {
	t.Parallel()
	g := extractPython(t, `
class Base:
    pass

class Child(Base):
    def run(self):
        pass
`)

	child := findSymbol(t, g, "Child")
	assert.Equal(t, KindClass, child.Kind)

	run := findSymbol(t, g, "run")
	assert.Equal(t, KindMethod, run.Kind, "functions in a class body are methods")

	childIdx := -1
	for i, s := range g.Symbols {
		if s.Name == "Child" {
			childIdx = i
		}
	}
	require.GreaterOrEqual(t, childIdx, 0)
	assert.Equal(t, childIdx, run.Parent)

	bases := refsNamed(g, "Base")
	var baseRefs []Ref
	for _, r := range bases {
		if r.Context == CtxBase {
			baseRefs = append(baseRefs, r)
		}
	}
	require.Len(t, baseRefs, 1)
	assert.Equal(t, childIdx, baseRefs[0].Enclosing, "base clause hangs off the class symbol")
	assert.Equal(t, 0, baseRefs[0].Scope, "base names are looked up where the class is defined")
}

func TestPython_CallRefs(t *testing.T) {
	t.Parallel()
	g := extractPython(t, `
def caller():
    helper()
    util.helper()
`)

	calls := refsNamed(g, "helper")
	require.Len(t, calls, 2)

	assert.Equal(t, CtxCall, calls[0].Context)
	assert.Empty(t, calls[0].Qualifier)

	assert.Equal(t, CtxCall, calls[1].Context)
	assert.Equal(t, "util", calls[1].Qualifier)

	callerIdx := -1
	for i, s := range g.Symbols {
		if s.Name == "caller" {
			callerIdx = i
		}
	}
	assert.Equal(t, callerIdx, calls[0].Enclosing)
}

func TestPython_Imports(t *testing.T) {
	t.Parallel()
	g := extractPython(t, `
import os
import numpy as np
from util import helper, other as o
from pkg import *
`)

	require.Len(t, g.Imports, 5)

	assert.Equal(t, Import{Source: "os", Kind: "module", Span: g.Imports[0].Span}, g.Imports[0])

	np := g.Imports[1]
	assert.Equal(t, "numpy", np.Source)
	assert.Equal(t, "np", np.LocalAlias)
	assert.Equal(t, "module", np.Kind)

	helper := g.Imports[2]
	assert.Equal(t, "util", helper.Source)
	assert.Equal(t, "helper", helper.ImportedName)
	assert.Equal(t, "named", helper.Kind)
	assert.Empty(t, helper.LocalAlias)

	other := g.Imports[3]
	assert.Equal(t, "other", other.ImportedName)
	assert.Equal(t, "o", other.LocalAlias)

	star := g.Imports[4]
	assert.Equal(t, "pkg", star.Source)
	assert.Equal(t, "namespace", star.Kind)

	// Named imports double as edge candidates so renames can rewrite
	// the clause text.
	importRefs := refsNamed(g, "helper")
	require.Len(t, importRefs, 1)
	assert.Equal(t, CtxImport, importRefs[0].Context)
}

func TestPython_ImportRefSpanCoversName(t *testing.T) {
	t.Parallel()
	src := "from util import helper\n"
	g := extractPython(t, src)

	refs := refsNamed(g, "helper")
	require.Len(t, refs, 1)
	assert.Equal(t, "helper", src[refs[0].Span.Start:refs[0].Span.End])
}

func TestPython_AssignmentsAndAnnotations(t *testing.T) {
	t.Parallel()
	g := extractPython(t, `
count: int = 0
a, b = 1, 2
_hidden = 3
`)

	count := findSymbol(t, g, "count")
	assert.Equal(t, KindVariable, count.Kind)
	assert.Equal(t, "int", count.TypeExpr)
	assert.True(t, count.Exported)

	findSymbol(t, g, "a")
	findSymbol(t, g, "b")

	hidden := findSymbol(t, g, "_hidden")
	assert.False(t, hidden.Exported)

	// The annotation itself is a type-context candidate.
	intRefs := refsNamed(g, "int")
	require.NotEmpty(t, intRefs)
	assert.Equal(t, CtxType, intRefs[0].Context)
}

func TestPython_TypedParameters(t *testing.T) {
	t.Parallel()
	g := extractPython(t, `
def greet(name: str, times: int = 1):
    pass
`)

	name := findSymbol(t, g, "name")
	assert.Equal(t, KindParameter, name.Kind)
	assert.Equal(t, "str", name.TypeExpr)

	times := findSymbol(t, g, "times")
	assert.Equal(t, "int", times.TypeExpr)

	strRefs := refsNamed(g, "str")
	require.NotEmpty(t, strRefs)
	assert.Equal(t, CtxType, strRefs[0].Context)
}

func TestPython_ScopeTree(t *testing.T) {
	t.Parallel()
	g := extractPython(t, `
class C:
    def m(self):
        pass
`)

	require.GreaterOrEqual(t, len(g.Scopes), 3)
	assert.Equal(t, "file", g.Scopes[0].Kind)
	assert.Equal(t, -1, g.Scopes[0].Parent)

	m := findSymbol(t, g, "m")
	classScope := g.Scopes[m.Scope]
	assert.Equal(t, "class", classScope.Kind)
	assert.Equal(t, 0, classScope.Parent)

	self := findSymbol(t, g, "self")
	fnScope := g.Scopes[self.Scope]
	assert.Equal(t, "function", fnScope.Kind)
	assert.Equal(t, m.Scope, fnScope.Parent)
}

func TestPython_DecoratedDefinition(t *testing.T) {
	t.Parallel()
	g := extractPython(t, `
@cache
def slow():
    pass
`)

	slow := findSymbol(t, g, "slow")
	assert.Equal(t, KindFunction, slow.Kind)
}
