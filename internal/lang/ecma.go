package lang

import (
	"fmt"
	"strings"

	"github.com/jward/graft/internal/syntax"
)

// ecma is the shared walker for TypeScript and JavaScript: the grammars
// overlap almost completely, TypeScript adding type-level nodes that the
// JavaScript grammar simply never produces.
type ecma struct {
	lang string
}

// TypeScript is the graph builder for TypeScript source files.
type TypeScript struct{ ecma }

// NewTypeScript returns the TypeScript extractor.
func NewTypeScript() *TypeScript { return &TypeScript{ecma{lang: "typescript"}} }

// JavaScript is the graph builder for JavaScript source files.
type JavaScript struct{ ecma }

// NewJavaScript returns the JavaScript extractor.
func NewJavaScript() *JavaScript { return &JavaScript{ecma{lang: "javascript"}} }

func (e *ecma) Language() string { return e.lang }

func (e *ecma) ModuleName(path string) string { return stemModule(path) }

func (e *ecma) RenderImport(source, name, alias string) string {
	switch {
	case name == "":
		return fmt.Sprintf("import * as %s from %q;\n", alias, source)
	case alias != "":
		return fmt.Sprintf("import { %s as %s } from %q;\n", name, alias, source)
	default:
		return fmt.Sprintf("import { %s } from %q;\n", name, source)
	}
}

func (e *ecma) RenderReexport(source, name string) string {
	return fmt.Sprintf("export { %s } from %q;\n", name, source)
}

func (e *ecma) Extract(tree *syntax.Tree, path string) (*FileGraph, error) {
	root := tree.Root()
	b := newBuilder(root.Span())
	b.g.Module = e.ModuleName(path)
	e.walk(b, root, false)
	return b.g, nil
}

// trimSource strips quotes from an import source string literal.
func trimSource(text string) string {
	return strings.Trim(text, "'\"`")
}

// walk traverses the tree. exported is true inside an export_statement so
// declarations pick up their exported flag.
func (e *ecma) walk(b *builder, n syntax.Node, exported bool) {
	if !n.Valid() || n.IsError() {
		return
	}
	switch n.Kind() {
	case "import_statement":
		e.walkImport(b, n)

	case "export_statement":
		e.walkExport(b, n)

	case "function_declaration", "generator_function_declaration":
		e.walkFunction(b, n, KindFunction, exported)

	case "class_declaration":
		e.walkClass(b, n, exported)

	case "interface_declaration":
		e.walkInterface(b, n, exported)

	case "type_alias_declaration":
		e.walkTypeAlias(b, n, exported)

	case "lexical_declaration", "variable_declaration":
		for i := 0; i < n.NamedChildCount(); i++ {
			if c := n.NamedChild(i); c.Kind() == "variable_declarator" {
				e.walkDeclarator(b, n, c, exported)
			}
		}

	case "method_definition":
		e.walkFunction(b, n, KindMethod, false)

	case "call_expression":
		e.walkCall(b, n)

	case "member_expression":
		e.walkMember(b, n, CtxName)

	case "type_annotation":
		e.walkTypeExpr(b, n)

	case "extends_clause", "class_heritage", "implements_clause", "extends_type_clause":
		e.walkHeritage(b, n)

	case "identifier":
		b.addRef(n.Text(), "", CtxName, n.Span())

	case "type_identifier":
		b.addRef(n.Text(), "", CtxType, n.Span())

	case "comment", "string", "template_string", "property_identifier":
		// nothing to emit

	default:
		for i := 0; i < n.ChildCount(); i++ {
			e.walk(b, n.Child(i), false)
		}
	}
}

func (e *ecma) walkImport(b *builder, n syntax.Node) {
	sourceNode := n.ChildByField("source")
	if !sourceNode.Valid() {
		return
	}
	source := trimSource(sourceNode.Text())
	clauseSeen := false
	for i := 0; i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() != "import_clause" {
			continue
		}
		clauseSeen = true
		for j := 0; j < c.NamedChildCount(); j++ {
			part := c.NamedChild(j)
			switch part.Kind() {
			case "identifier": // default import
				b.g.Imports = append(b.g.Imports, Import{
					Source:       source,
					ImportedName: "default",
					LocalAlias:   part.Text(),
					Kind:         "named",
					Span:         n.Span(),
					NameSpan:     part.Span(),
				})
			case "namespace_import":
				for k := 0; k < part.NamedChildCount(); k++ {
					if id := part.NamedChild(k); id.Kind() == "identifier" {
						b.g.Imports = append(b.g.Imports, Import{
							Source:     source,
							LocalAlias: id.Text(),
							Kind:       "namespace",
							Span:       n.Span(),
							NameSpan:   id.Span(),
						})
					}
				}
			case "named_imports":
				for k := 0; k < part.NamedChildCount(); k++ {
					spec := part.NamedChild(k)
					if spec.Kind() != "import_specifier" {
						continue
					}
					nameNode := spec.ChildByField("name")
					aliasNode := spec.ChildByField("alias")
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
				}
			}
		}
	}
	if !clauseSeen {
		// Side-effect import: still a dependency edge.
		b.g.Imports = append(b.g.Imports, Import{Source: source, Kind: "module", Span: n.Span()})
	}
}

// walkExport handles both "export <declaration>" and re-export clauses
// like "export { f } from './m'".
func (e *ecma) walkExport(b *builder, n syntax.Node) {
	sourceNode := n.ChildByField("source")
	source := ""
	if sourceNode.Valid() {
		source = trimSource(sourceNode.Text())
	}
	if decl := n.ChildByField("declaration"); decl.Valid() {
		e.walk(b, decl, true)
		return
	}
	for i := 0; i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() != "export_clause" {
			continue
		}
		for j := 0; j < c.NamedChildCount(); j++ {
			spec := c.NamedChild(j)
			if spec.Kind() != "export_specifier" {
				continue
			}
			nameNode := spec.ChildByField("name")
			if !nameNode.Valid() {
				continue
			}
			b.g.Reexports = append(b.g.Reexports, Reexport{
				Source: source,
				Name:   nameNode.Text(),
				Span:   n.Span(),
			})
			if source == "" {
				// Re-export of a local binding: a plain use.
				b.addRef(nameNode.Text(), "", CtxName, nameNode.Span())
			}
		}
	}
}

func (e *ecma) walkFunction(b *builder, n syntax.Node, kind string, exported bool) {
	nameNode := n.ChildByField("name")
	if !nameNode.Valid() {
		return
	}
	symIdx := b.addSymbol(nameNode.Text(), kind, "", exported, n.Span(), nameNode.Span())
	restore := b.pushScope("function", n.Span())
	defer restore()
	restoreEnc := b.withEnclosing(symIdx)
	defer restoreEnc()

	e.walkParams(b, n.ChildByField("parameters"))
	e.walkTypeExpr(b, n.ChildByField("return_type"))
	e.walk(b, n.ChildByField("body"), false)
}

func (e *ecma) walkParams(b *builder, params syntax.Node) {
	if !params.Valid() {
		return
	}
	for i := 0; i < params.NamedChildCount(); i++ {
		c := params.NamedChild(i)
		switch c.Kind() {
		case "identifier":
			b.addSymbol(c.Text(), KindParameter, "", false, c.Span(), c.Span())
		case "required_parameter", "optional_parameter":
			pattern := c.ChildByField("pattern")
			typeNode := c.ChildByField("type")
			typeExpr := ""
			if typeNode.Valid() {
				typeExpr = strings.TrimPrefix(typeNode.Text(), ": ")
			}
			if pattern.Valid() && pattern.Kind() == "identifier" {
				b.addSymbol(pattern.Text(), KindParameter, typeExpr, false, c.Span(), pattern.Span())
			}
			e.walkTypeExpr(b, typeNode)
			e.walk(b, c.ChildByField("value"), false)
		}
	}
}

func (e *ecma) walkTypeExpr(b *builder, n syntax.Node) {
	if !n.Valid() || n.IsError() {
		return
	}
	switch n.Kind() {
	case "type_identifier":
		b.addRef(n.Text(), "", CtxType, n.Span())
	case "nested_type_identifier":
		// module.Type, a qualified type use
		module := n.ChildByField("module")
		name := n.ChildByField("name")
		if module.Valid() && name.Valid() {
			b.addRef(name.Text(), module.Text(), CtxType, name.Span())
		}
	default:
		for i := 0; i < n.NamedChildCount(); i++ {
			e.walkTypeExpr(b, n.NamedChild(i))
		}
	}
}

func (e *ecma) walkClass(b *builder, n syntax.Node, exported bool) {
	nameNode := n.ChildByField("name")
	if !nameNode.Valid() {
		return
	}
	symIdx := b.addSymbol(nameNode.Text(), KindClass, "", exported, n.Span(), nameNode.Span())
	restoreEnc := b.withEnclosing(symIdx)
	for i := 0; i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c.Kind() == "class_heritage" {
			e.walkHeritage(b, c)
		}
	}
	restoreEnc()

	restore := b.pushScope("class", n.Span())
	defer restore()
	restoreEnc2 := b.withEnclosing(symIdx)
	defer restoreEnc2()
	e.walk(b, n.ChildByField("body"), false)
}

// walkHeritage emits base-clause candidates from extends/implements.
func (e *ecma) walkHeritage(b *builder, n syntax.Node) {
	for i := 0; i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		switch c.Kind() {
		case "identifier", "type_identifier":
			b.addRef(c.Text(), "", CtxBase, c.Span())
		case "member_expression":
			object := c.ChildByField("object")
			prop := c.ChildByField("property")
			if object.Valid() && object.Kind() == "identifier" && prop.Valid() {
				b.addRef(prop.Text(), object.Text(), CtxBase, prop.Span())
			}
		default:
			e.walkHeritage(b, c)
		}
	}
}

func (e *ecma) walkInterface(b *builder, n syntax.Node, exported bool) {
	nameNode := n.ChildByField("name")
	if !nameNode.Valid() {
		return
	}
	symIdx := b.addSymbol(nameNode.Text(), KindInterface, "", exported, n.Span(), nameNode.Span())
	restoreEnc := b.withEnclosing(symIdx)
	defer restoreEnc()
	for i := 0; i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		switch c.Kind() {
		case "extends_type_clause":
			e.walkHeritage(b, c)
		case "interface_body", "object_type":
			e.walkTypeExpr(b, c)
		}
	}
}

func (e *ecma) walkTypeAlias(b *builder, n syntax.Node, exported bool) {
	nameNode := n.ChildByField("name")
	if !nameNode.Valid() {
		return
	}
	b.addSymbol(nameNode.Text(), KindTypeAlias, "", exported, n.Span(), nameNode.Span())
	e.walkTypeExpr(b, n.ChildByField("value"))
}

func (e *ecma) walkDeclarator(b *builder, decl, declarator syntax.Node, exported bool) {
	nameNode := declarator.ChildByField("name")
	typeNode := declarator.ChildByField("type")
	typeExpr := ""
	if typeNode.Valid() {
		typeExpr = strings.TrimPrefix(typeNode.Text(), ": ")
	}
	if nameNode.Valid() && nameNode.Kind() == "identifier" {
		b.addSymbol(nameNode.Text(), KindVariable, typeExpr, exported, decl.Span(), nameNode.Span())
	} else if nameNode.Valid() {
		e.walk(b, nameNode, false) // destructuring patterns: best effort
	}
	e.walkTypeExpr(b, typeNode)
	e.walk(b, declarator.ChildByField("value"), false)
}

func (e *ecma) walkCall(b *builder, n syntax.Node) {
	fn := n.ChildByField("function")
	switch {
	case fn.Valid() && fn.Kind() == "identifier":
		b.addRef(fn.Text(), "", CtxCall, fn.Span())
	case fn.Valid() && fn.Kind() == "member_expression":
		e.walkMember(b, fn, CtxCall)
	default:
		e.walk(b, fn, false)
	}
	e.walk(b, n.ChildByField("arguments"), false)
}

func (e *ecma) walkMember(b *builder, n syntax.Node, context string) {
	object := n.ChildByField("object")
	prop := n.ChildByField("property")
	if object.Valid() && object.Kind() == "identifier" && prop.Valid() {
		b.addRef(object.Text(), "", CtxName, object.Span())
		b.addRef(prop.Text(), object.Text(), context, prop.Span())
		return
	}
	e.walk(b, object, false)
}
