package lang

import (
	"fmt"
	"strings"

	"github.com/jward/graft/internal/syntax"
)

// Python is the graph builder for Python source files.
type Python struct{}

// NewPython returns the Python extractor.
func NewPython() *Python { return &Python{} }

func (p *Python) Language() string { return "python" }

// ModuleName for Python is the file stem: "pkg/util.py" imports as
// "util" (or any dotted path ending in it; the resolver suffix-matches).
func (p *Python) ModuleName(path string) string { return stemModule(path) }

func (p *Python) RenderImport(source, name, alias string) string {
	switch {
	case name == "":
		return fmt.Sprintf("import %s\n", source)
	case alias != "":
		return fmt.Sprintf("from %s import %s as %s\n", source, name, alias)
	default:
		return fmt.Sprintf("from %s import %s\n", source, name)
	}
}

func (p *Python) RenderReexport(source, name string) string {
	return fmt.Sprintf("from %s import %s\n", source, name)
}

func (p *Python) Extract(tree *syntax.Tree, path string) (*FileGraph, error) {
	root := tree.Root()
	b := newBuilder(root.Span())
	b.g.Module = p.ModuleName(path)
	p.walk(b, root)
	return b.g, nil
}

// pyExported: Python has no visibility keywords; a leading underscore is
// the conventional private marker.
func pyExported(name string) bool {
	return !strings.HasPrefix(name, "_")
}

func (p *Python) walk(b *builder, n syntax.Node) {
	if !n.Valid() || n.IsError() {
		return
	}
	switch n.Kind() {
	case "import_statement":
		p.walkImport(b, n)

	case "import_from_statement":
		p.walkFromImport(b, n)

	case "function_definition":
		p.walkFunction(b, n)

	case "class_definition":
		p.walkClass(b, n)

	case "decorated_definition":
		for i := 0; i < n.NamedChildCount(); i++ {
			p.walk(b, n.NamedChild(i))
		}

	case "assignment", "augmented_assignment":
		p.walkAssignment(b, n)

	case "call":
		p.walkCall(b, n)

	case "attribute":
		p.walkAttribute(b, n, CtxName)

	case "identifier":
		b.addRef(n.Text(), "", CtxName, n.Span())

	case "comment", "string":
		// nothing to emit

	default:
		for i := 0; i < n.ChildCount(); i++ {
			p.walk(b, n.Child(i))
		}
	}
}

// walkImport handles "import a.b" and "import a.b as c".
func (p *Python) walkImport(b *builder, n syntax.Node) {
	for i := 0; i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		switch c.Kind() {
		case "dotted_name":
			b.g.Imports = append(b.g.Imports, Import{
				Source: c.Text(),
				Kind:   "module",
				Span:   n.Span(),
			})
		case "aliased_import":
			nameNode := c.ChildByField("name")
			aliasNode := c.ChildByField("alias")
			if !nameNode.Valid() {
				continue
			}
			imp := Import{Source: nameNode.Text(), Kind: "module", Span: n.Span()}
			if aliasNode.Valid() {
				imp.LocalAlias = aliasNode.Text()
				imp.NameSpan = aliasNode.Span()
			}
			b.g.Imports = append(b.g.Imports, imp)
		}
	}
}

// walkFromImport handles "from m import a, b as c" and "from m import *".
// Each imported name is also an edge candidate so renames reach the
// import clause text.
func (p *Python) walkFromImport(b *builder, n syntax.Node) {
	moduleNode := n.ChildByField("module_name")
	if !moduleNode.Valid() {
		return
	}
	source := moduleNode.Text()
	for i := 0; i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		switch c.Kind() {
		case "dotted_name":
			if c.Span() == moduleNode.Span() {
				continue // the module itself, not an imported name
			}
			b.g.Imports = append(b.g.Imports, Import{
				Source:       source,
				ImportedName: c.Text(),
				Kind:         "named",
				Span:         n.Span(),
				NameSpan:     c.Span(),
			})
			b.addRef(c.Text(), "", CtxImport, c.Span())
		case "aliased_import":
			nameNode := c.ChildByField("name")
			aliasNode := c.ChildByField("alias")
			if !nameNode.Valid() {
				continue
			}
			imp := Import{
				Source:       source,
				ImportedName: nameNode.Text(),
				Kind:         "named",
				Span:         n.Span(),
				NameSpan:     nameNode.Span(),
			}
			if aliasNode.Valid() {
				imp.LocalAlias = aliasNode.Text()
			}
			b.g.Imports = append(b.g.Imports, imp)
			b.addRef(nameNode.Text(), "", CtxImport, nameNode.Span())
		case "wildcard_import":
			b.g.Imports = append(b.g.Imports, Import{
				Source: source,
				Kind:   "namespace",
				Span:   n.Span(),
			})
		}
	}
}

func (p *Python) walkFunction(b *builder, n syntax.Node) {
	nameNode := n.ChildByField("name")
	if !nameNode.Valid() {
		return
	}
	kind := KindFunction
	if b.g.Scopes[b.scope].Kind == "class" {
		kind = KindMethod
	}
	symIdx := b.addSymbol(nameNode.Text(), kind, "", pyExported(nameNode.Text()), n.Span(), nameNode.Span())
	restore := b.pushScope("function", n.Span())
	defer restore()
	restoreEnc := b.withEnclosing(symIdx)
	defer restoreEnc()

	p.walkParams(b, n.ChildByField("parameters"))
	p.walk(b, n.ChildByField("return_type"))
	p.walk(b, n.ChildByField("body"))
}

func (p *Python) walkParams(b *builder, params syntax.Node) {
	if !params.Valid() {
		return
	}
	for i := 0; i < params.NamedChildCount(); i++ {
		c := params.NamedChild(i)
		switch c.Kind() {
		case "identifier":
			b.addSymbol(c.Text(), KindParameter, "", false, c.Span(), c.Span())
		case "typed_parameter", "typed_default_parameter", "default_parameter":
			var nameNode syntax.Node
			if c.Kind() == "typed_parameter" {
				// first named child is the identifier
				if c.NamedChildCount() > 0 {
					nameNode = c.NamedChild(0)
				}
			} else {
				nameNode = c.ChildByField("name")
			}
			typeNode := c.ChildByField("type")
			typeExpr := ""
			if typeNode.Valid() {
				typeExpr = typeNode.Text()
			}
			if nameNode.Valid() && nameNode.Kind() == "identifier" {
				b.addSymbol(nameNode.Text(), KindParameter, typeExpr, false, c.Span(), nameNode.Span())
			}
			p.walkTypeExpr(b, typeNode)
			p.walk(b, c.ChildByField("value"))
		case "list_splat_pattern", "dictionary_splat_pattern":
			if c.NamedChildCount() > 0 && c.NamedChild(0).Kind() == "identifier" {
				id := c.NamedChild(0)
				b.addSymbol(id.Text(), KindParameter, "", false, c.Span(), id.Span())
			}
		}
	}
}

// walkTypeExpr emits type-context candidates for annotation expressions.
func (p *Python) walkTypeExpr(b *builder, n syntax.Node) {
	if !n.Valid() || n.IsError() {
		return
	}
	switch n.Kind() {
	case "identifier":
		b.addRef(n.Text(), "", CtxType, n.Span())
	case "attribute":
		p.walkAttribute(b, n, CtxType)
	default:
		for i := 0; i < n.NamedChildCount(); i++ {
			p.walkTypeExpr(b, n.NamedChild(i))
		}
	}
}

func (p *Python) walkClass(b *builder, n syntax.Node) {
	nameNode := n.ChildByField("name")
	if !nameNode.Valid() {
		return
	}
	symIdx := b.addSymbol(nameNode.Text(), KindClass, "", pyExported(nameNode.Text()), n.Span(), nameNode.Span())

	// Base-class clause candidates are emitted in the enclosing scope:
	// base names are looked up where the class is defined.
	if supers := n.ChildByField("superclasses"); supers.Valid() {
		restoreEnc := b.withEnclosing(symIdx)
		for i := 0; i < supers.NamedChildCount(); i++ {
			base := supers.NamedChild(i)
			switch base.Kind() {
			case "identifier":
				b.addRef(base.Text(), "", CtxBase, base.Span())
			case "attribute":
				p.walkAttribute(b, base, CtxBase)
			case "keyword_argument":
				p.walk(b, base.ChildByField("value"))
			}
		}
		restoreEnc()
	}

	restore := b.pushScope("class", n.Span())
	defer restore()
	restoreEnc := b.withEnclosing(symIdx)
	defer restoreEnc()
	p.walk(b, n.ChildByField("body"))
}

func (p *Python) walkAssignment(b *builder, n syntax.Node) {
	left := n.ChildByField("left")
	typeNode := n.ChildByField("type")
	typeExpr := ""
	if typeNode.Valid() {
		typeExpr = typeNode.Text()
	}
	if left.Valid() {
		switch left.Kind() {
		case "identifier":
			b.addSymbol(left.Text(), KindVariable, typeExpr, pyExported(left.Text()), n.Span(), left.Span())
		case "pattern_list", "tuple_pattern":
			for i := 0; i < left.NamedChildCount(); i++ {
				if id := left.NamedChild(i); id.Kind() == "identifier" {
					b.addSymbol(id.Text(), KindVariable, "", pyExported(id.Text()), n.Span(), id.Span())
				}
			}
		default:
			p.walk(b, left) // attribute/subscript targets are uses
		}
	}
	p.walkTypeExpr(b, typeNode)
	p.walk(b, n.ChildByField("right"))
}

func (p *Python) walkCall(b *builder, n syntax.Node) {
	fn := n.ChildByField("function")
	switch {
	case fn.Valid() && fn.Kind() == "identifier":
		b.addRef(fn.Text(), "", CtxCall, fn.Span())
	case fn.Valid() && fn.Kind() == "attribute":
		p.walkAttribute(b, fn, CtxCall)
	default:
		p.walk(b, fn)
	}
	p.walk(b, n.ChildByField("arguments"))
}

// walkAttribute emits a qualified candidate for mod.name attributes when
// the object is a bare identifier; the object itself is also a use.
func (p *Python) walkAttribute(b *builder, n syntax.Node, context string) {
	object := n.ChildByField("object")
	attr := n.ChildByField("attribute")
	if object.Valid() && object.Kind() == "identifier" && attr.Valid() {
		b.addRef(object.Text(), "", CtxName, object.Span())
		b.addRef(attr.Text(), object.Text(), context, attr.Span())
		return
	}
	p.walk(b, object)
}
