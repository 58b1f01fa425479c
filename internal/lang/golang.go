package lang

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/jward/graft/internal/syntax"
)

// Go is the graph builder for Go source files.
type Go struct{}

// NewGo returns the Go extractor.
func NewGo() *Go { return &Go{} }

func (g *Go) Language() string { return "go" }

// ModuleName for Go is the containing directory's base name: files in the
// same directory form one package and import sources end with it.
func (g *Go) ModuleName(path string) string {
	dir := filepath.Base(filepath.Dir(path))
	if dir == "." || dir == string(filepath.Separator) {
		return stemModule(path)
	}
	return dir
}

func (g *Go) RenderImport(source, name, alias string) string {
	if alias != "" {
		return fmt.Sprintf("import %s %q\n", alias, source)
	}
	return fmt.Sprintf("import %q\n", source)
}

// RenderReexport returns "": Go has no re-export form. Files in the same
// package see the moved symbol without one.
func (g *Go) RenderReexport(source, name string) string { return "" }

func (g *Go) Extract(tree *syntax.Tree, path string) (*FileGraph, error) {
	root := tree.Root()
	b := newBuilder(root.Span())
	b.g.Module = g.ModuleName(path)
	g.walk(b, root)
	return b.g, nil
}

func goExported(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}

func (g *Go) walk(b *builder, n syntax.Node) {
	if !n.Valid() || n.IsError() {
		return
	}
	switch n.Kind() {
	case "import_declaration":
		g.walkImports(b, n)

	case "function_declaration":
		g.walkFunction(b, n, KindFunction)

	case "method_declaration":
		g.walkFunction(b, n, KindMethod)

	case "type_declaration":
		for i := 0; i < n.NamedChildCount(); i++ {
			g.walkTypeSpec(b, n.NamedChild(i))
		}

	case "var_declaration", "const_declaration":
		for i := 0; i < n.NamedChildCount(); i++ {
			g.walkValueSpec(b, n.NamedChild(i))
		}

	case "short_var_declaration":
		left := n.ChildByField("left")
		if left.Valid() {
			for i := 0; i < left.NamedChildCount(); i++ {
				id := left.NamedChild(i)
				if id.Kind() == "identifier" {
					b.addSymbol(id.Text(), KindVariable, "", false, n.Span(), id.Span())
				}
			}
		}
		g.walk(b, n.ChildByField("right"))

	case "call_expression":
		g.walkCall(b, n)

	case "selector_expression":
		g.walkSelector(b, n, CtxName)

	case "qualified_type":
		pkg := n.ChildByField("package")
		name := n.ChildByField("name")
		if pkg.Valid() && name.Valid() {
			b.addRef(name.Text(), pkg.Text(), CtxType, name.Span())
		}

	case "type_identifier":
		b.addRef(n.Text(), "", CtxType, n.Span())

	case "identifier":
		b.addRef(n.Text(), "", CtxName, n.Span())

	case "package_clause", "field_identifier", "package_identifier",
		"blank_identifier", "comment", "interpreted_string_literal",
		"raw_string_literal":
		// no symbols or candidates here

	default:
		for i := 0; i < n.ChildCount(); i++ {
			g.walk(b, n.Child(i))
		}
	}
}

func (g *Go) walkImports(b *builder, n syntax.Node) {
	var specs []syntax.Node
	for i := 0; i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() == "import_spec" {
			specs = append(specs, c)
		} else if c.Kind() == "import_spec_list" {
			for j := 0; j < c.NamedChildCount(); j++ {
				if sc := c.NamedChild(j); sc.Kind() == "import_spec" {
					specs = append(specs, sc)
				}
			}
		}
	}
	for _, spec := range specs {
		pathNode := spec.ChildByField("path")
		if !pathNode.Valid() {
			continue
		}
		source := strings.Trim(pathNode.Text(), "`\"")
		imp := Import{Source: source, Kind: "module", Span: spec.Span()}
		if nameNode := spec.ChildByField("name"); nameNode.Valid() && nameNode.Kind() == "package_identifier" {
			imp.LocalAlias = nameNode.Text()
			imp.NameSpan = nameNode.Span()
		}
		b.g.Imports = append(b.g.Imports, imp)
	}
}

func (g *Go) walkFunction(b *builder, n syntax.Node, kind string) {
	nameNode := n.ChildByField("name")
	if !nameNode.Valid() {
		return
	}
	symIdx := b.addSymbol(nameNode.Text(), kind, "", goExported(nameNode.Text()), n.Span(), nameNode.Span())
	restore := b.pushScope("function", n.Span())
	defer restore()
	restoreEnc := b.withEnclosing(symIdx)
	defer restoreEnc()

	g.walkParams(b, n.ChildByField("receiver"))
	g.walkParams(b, n.ChildByField("parameters"))
	g.walk(b, n.ChildByField("result"))
	g.walk(b, n.ChildByField("body"))
}

func (g *Go) walkParams(b *builder, params syntax.Node) {
	if !params.Valid() {
		return
	}
	for i := 0; i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		if p.Kind() != "parameter_declaration" && p.Kind() != "variadic_parameter_declaration" {
			continue
		}
		typeNode := p.ChildByField("type")
		typeExpr := ""
		if typeNode.Valid() {
			typeExpr = typeNode.Text()
		}
		for j := 0; j < p.NamedChildCount(); j++ {
			c := p.NamedChild(j)
			if c.Kind() == "identifier" {
				b.addSymbol(c.Text(), KindParameter, typeExpr, false, p.Span(), c.Span())
			}
		}
		g.walk(b, typeNode)
	}
}

func (g *Go) walkTypeSpec(b *builder, spec syntax.Node) {
	if spec.Kind() != "type_spec" && spec.Kind() != "type_alias" {
		return
	}
	nameNode := spec.ChildByField("name")
	typeNode := spec.ChildByField("type")
	if !nameNode.Valid() {
		return
	}
	kind := KindTypeAlias
	if typeNode.Valid() {
		switch typeNode.Kind() {
		case "struct_type":
			kind = KindStruct
		case "interface_type":
			kind = KindInterface
		}
	}
	symIdx := b.addSymbol(nameNode.Text(), kind, "", goExported(nameNode.Text()), spec.Span(), nameNode.Span())
	restoreEnc := b.withEnclosing(symIdx)
	defer restoreEnc()

	switch kind {
	case KindStruct:
		g.walkStructBody(b, typeNode)
	case KindInterface:
		g.walkInterfaceBody(b, typeNode)
	default:
		g.walk(b, typeNode)
	}
}

// walkStructBody emits embedded fields as base-clause candidates and field
// type annotations as type candidates.
func (g *Go) walkStructBody(b *builder, structType syntax.Node) {
	for i := 0; i < structType.NamedChildCount(); i++ {
		list := structType.NamedChild(i)
		if list.Kind() != "field_declaration_list" {
			continue
		}
		for j := 0; j < list.NamedChildCount(); j++ {
			field := list.NamedChild(j)
			if field.Kind() != "field_declaration" {
				continue
			}
			typeNode := field.ChildByField("type")
			hasName := field.ChildByField("name").Valid()
			if !hasName && typeNode.Valid() {
				// Embedded field: an inheritance-like candidate.
				g.emitBaseRef(b, typeNode)
				continue
			}
			g.walk(b, typeNode)
		}
	}
}

// walkInterfaceBody emits embedded interfaces as base-clause candidates.
func (g *Go) walkInterfaceBody(b *builder, ifaceType syntax.Node) {
	for i := 0; i < ifaceType.NamedChildCount(); i++ {
		c := ifaceType.NamedChild(i)
		switch c.Kind() {
		case "type_identifier", "qualified_type", "type_elem":
			g.emitBaseRef(b, c)
		default:
			g.walk(b, c)
		}
	}
}

func (g *Go) emitBaseRef(b *builder, typeNode syntax.Node) {
	switch typeNode.Kind() {
	case "type_identifier":
		b.addRef(typeNode.Text(), "", CtxBase, typeNode.Span())
	case "qualified_type":
		pkg := typeNode.ChildByField("package")
		name := typeNode.ChildByField("name")
		if pkg.Valid() && name.Valid() {
			b.addRef(name.Text(), pkg.Text(), CtxBase, name.Span())
		}
	case "pointer_type", "type_elem":
		for i := 0; i < typeNode.NamedChildCount(); i++ {
			g.emitBaseRef(b, typeNode.NamedChild(i))
		}
	default:
		g.walk(b, typeNode)
	}
}

func (g *Go) walkValueSpec(b *builder, spec syntax.Node) {
	if spec.Kind() != "var_spec" && spec.Kind() != "const_spec" {
		return
	}
	typeNode := spec.ChildByField("type")
	typeExpr := ""
	if typeNode.Valid() {
		typeExpr = typeNode.Text()
	}
	for i := 0; i < spec.NamedChildCount(); i++ {
		c := spec.NamedChild(i)
		if c.Kind() == "identifier" {
			b.addSymbol(c.Text(), KindVariable, typeExpr, goExported(c.Text()), spec.Span(), c.Span())
		}
	}
	g.walk(b, typeNode)
	g.walk(b, spec.ChildByField("value"))
}

func (g *Go) walkCall(b *builder, n syntax.Node) {
	fn := n.ChildByField("function")
	switch {
	case fn.Valid() && fn.Kind() == "identifier":
		b.addRef(fn.Text(), "", CtxCall, fn.Span())
	case fn.Valid() && fn.Kind() == "selector_expression":
		g.walkSelector(b, fn, CtxCall)
	default:
		g.walk(b, fn)
	}
	g.walk(b, n.ChildByField("type_arguments"))
	g.walk(b, n.ChildByField("arguments"))
}

// walkSelector emits a qualified candidate for pkg.Name selectors. When
// the operand is itself an expression, only the operand is walked; the
// field cannot be qualified and stays unbound.
func (g *Go) walkSelector(b *builder, n syntax.Node, context string) {
	operand := n.ChildByField("operand")
	field := n.ChildByField("field")
	if operand.Valid() && operand.Kind() == "identifier" && field.Valid() {
		// The operand is a use of its own name in addition to qualifying
		// the field: both get candidates.
		b.addRef(operand.Text(), "", CtxName, operand.Span())
		b.addRef(field.Text(), operand.Text(), context, field.Span())
		return
	}
	g.walk(b, operand)
}
