// Package syntax wraps the external tree-sitter parser behind a small
// adapter. It is the only package that imports tree-sitter; everything
// else sees trees through [Tree] and [Node].
package syntax

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Span is a half-open byte range [Start, End) within a file, with the
// line/column of its first byte for display. Lines and columns are 0-based.
type Span struct {
	Start, End uint32
	Line, Col  uint32
}

// Tree holds a parsed concrete syntax tree for one file. The source the
// tree was parsed from travels with it so node text can be recovered.
type Tree struct {
	Lang   string
	Source []byte
	inner  *sitter.Tree
}

// Parse parses source text for the given language.
// Tree-sitter parsers are not goroutine-safe, so a fresh parser is
// created per call; callers that parse many files should do so from a
// worker pool, not by sharing a parser.
func Parse(ctx context.Context, lang string, source []byte) (*Tree, error) {
	grammar, ok := GrammarForLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("parse: unsupported language %q", lang)
	}
	p := sitter.NewParser()
	p.SetLanguage(grammar)
	t, err := p.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", lang, err)
	}
	return &Tree{Lang: lang, Source: source, inner: t}, nil
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t.inner != nil {
		t.inner.Close()
	}
}

// Root returns the root node of the tree.
func (t *Tree) Root() Node {
	return Node{n: t.inner.RootNode(), src: t.Source}
}

// HasError reports whether the tree contains any parser error nodes.
func (t *Tree) HasError() bool {
	return t.inner.RootNode().HasError()
}

// Node is a lightweight view over a tree-sitter node. The zero Node is
// invalid; use [Node.Valid] after field lookups.
type Node struct {
	n   *sitter.Node
	src []byte
}

// Valid reports whether the node exists.
func (n Node) Valid() bool { return n.n != nil }

// Kind returns the grammar node type, e.g. "function_declaration".
func (n Node) Kind() string { return n.n.Type() }

// IsError reports whether this node is a parser error node or is missing.
// Subtrees rooted at error nodes yield no symbols or edge candidates.
func (n Node) IsError() bool {
	return n.n.IsError() || n.n.IsMissing()
}

// Span returns the node's byte span and starting position.
func (n Node) Span() Span {
	p := n.n.StartPoint()
	return Span{
		Start: n.n.StartByte(),
		End:   n.n.EndByte(),
		Line:  p.Row,
		Col:   p.Column,
	}
}

// Text returns the source text covered by the node.
func (n Node) Text() string {
	return n.n.Content(n.src)
}

// ChildCount returns the number of children, including anonymous nodes.
func (n Node) ChildCount() int { return int(n.n.ChildCount()) }

// Child returns the i-th child.
func (n Node) Child(i int) Node {
	return Node{n: n.n.Child(i), src: n.src}
}

// NamedChildCount returns the number of named children.
func (n Node) NamedChildCount() int { return int(n.n.NamedChildCount()) }

// NamedChild returns the i-th named child.
func (n Node) NamedChild(i int) Node {
	return Node{n: n.n.NamedChild(i), src: n.src}
}

// ChildByField returns the child for a grammar field name, if any.
func (n Node) ChildByField(field string) Node {
	return Node{n: n.n.ChildByFieldName(field), src: n.src}
}

// Parent returns the parent node.
func (n Node) Parent() Node {
	return Node{n: n.n.Parent(), src: n.src}
}
