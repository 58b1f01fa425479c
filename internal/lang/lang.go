// Package lang holds the per-language graph builders. Each extractor walks
// a file's syntax tree exactly once and emits the file's symbols, scopes,
// reference candidates, imports, and re-exports as a [FileGraph]. Nothing
// here resolves names; candidates are bound later by the resolver.
package lang

import (
	"path/filepath"
	"strings"

	"github.com/jward/graft/internal/syntax"
)

// Reference contexts. Every syntactic use of a name carries exactly one.
const (
	CtxCall   = "call"   // callee position of a call expression
	CtxName   = "name"   // plain value use
	CtxType   = "type"   // type annotation or type expression
	CtxBase   = "base"   // superclass / embedded-interface clause
	CtxImport = "import" // name inside an import clause
)

// Symbol kinds.
const (
	KindFunction  = "function"
	KindMethod    = "method"
	KindClass     = "class"
	KindStruct    = "struct"
	KindInterface = "interface"
	KindTypeAlias = "type_alias"
	KindVariable  = "variable"
	KindParameter = "parameter"
)

// Scope is one lexical scope. Scopes form a tree by slice index; index 0
// is always the file scope with Parent == -1, and parents precede
// children in the slice.
type Scope struct {
	Kind   string // file | function | class | block
	Parent int
	Span   syntax.Span
}

// Symbol is one declaration emitted by an extractor.
type Symbol struct {
	Name     string
	Kind     string
	Scope    int // declaring scope index
	Parent   int // enclosing symbol index, -1 for top level
	Exported bool
	TypeExpr string      // optional type annotation text
	Span     syntax.Span // the whole declaration
	NameSpan syntax.Span // just the declared identifier
}

// Ref is one unresolved edge candidate: a syntactic use of a name.
type Ref struct {
	Name      string
	Qualifier string // "pkg" in pkg.Name, "" for plain names
	Context   string
	Scope     int
	Enclosing int         // enclosing symbol index, -1 at file level
	Span      syntax.Span // span of the name identifier itself
}

// Import is one import clause binding.
type Import struct {
	Source       string // module path as written in source
	ImportedName string // named import; "" for module/namespace imports
	LocalAlias   string
	Kind         string      // named | namespace | module
	Span         syntax.Span // the whole clause (for rewriting)
	NameSpan     syntax.Span // the local binding identifier; zero if none
}

// Reexport is an explicit re-export clause (export {x} from "./m", etc.).
// Source is empty when a local symbol is re-exported.
type Reexport struct {
	Source string
	Name   string
	Span   syntax.Span
}

// FileGraph is the single-pass output of an extractor for one file.
type FileGraph struct {
	Module    string // language-specific module name for import matching
	Scopes    []Scope
	Symbols   []Symbol
	Refs      []Ref
	Imports   []Import
	Reexports []Reexport
}

// Extractor is one language's graph builder plus the text renderers the
// mutation engine needs when it repairs imports.
type Extractor interface {
	Language() string
	Extract(tree *syntax.Tree, path string) (*FileGraph, error)

	// ModuleName derives the import-matching module name for a file path.
	ModuleName(path string) string
	// RenderImport renders an import statement binding name (or the whole
	// module when name is empty) from source. alias may be empty.
	RenderImport(source, name, alias string) string
	// RenderReexport renders a compatibility re-export left behind after
	// a symbol moves away. Empty string means the language has no form
	// for it and no back edge is written.
	RenderReexport(source, name string) string
}

// Registry maps language names to extractors.
type Registry struct {
	byLang map[string]Extractor
}

// NewRegistry returns a registry with all built-in extractors registered.
func NewRegistry() *Registry {
	r := &Registry{byLang: make(map[string]Extractor)}
	r.Register(NewGo())
	r.Register(NewPython())
	r.Register(NewTypeScript())
	r.Register(NewJavaScript())
	return r
}

// Register adds an extractor, replacing any previous one for its language.
func (r *Registry) Register(e Extractor) {
	r.byLang[e.Language()] = e
}

// ForLanguage returns the extractor for a canonical language name.
func (r *Registry) ForLanguage(lang string) (Extractor, bool) {
	e, ok := r.byLang[lang]
	return e, ok
}

// ForFile returns the extractor responsible for a file path.
func (r *Registry) ForFile(path string) (Extractor, bool) {
	lang, ok := syntax.LanguageForFile(path)
	if !ok {
		return nil, false
	}
	return r.ForLanguage(lang)
}

// builder accumulates a FileGraph during a walk. All extractors share it.
type builder struct {
	g *FileGraph

	// walk state
	scope     int // current scope index
	enclosing int // current enclosing symbol index, -1 at file level
}

func newBuilder(fileSpan syntax.Span) *builder {
	return &builder{
		g: &FileGraph{
			Scopes: []Scope{{Kind: "file", Parent: -1, Span: fileSpan}},
		},
		scope:     0,
		enclosing: -1,
	}
}

// pushScope opens a child scope of the current one and returns a restore
// function for the walk to defer.
func (b *builder) pushScope(kind string, span syntax.Span) func() {
	b.g.Scopes = append(b.g.Scopes, Scope{Kind: kind, Parent: b.scope, Span: span})
	prev := b.scope
	b.scope = len(b.g.Scopes) - 1
	return func() { b.scope = prev }
}

// withEnclosing sets the enclosing symbol for nested refs and returns a
// restore function.
func (b *builder) withEnclosing(symIdx int) func() {
	prev := b.enclosing
	b.enclosing = symIdx
	return func() { b.enclosing = prev }
}

// addSymbol records a declaration in the current scope and returns its index.
func (b *builder) addSymbol(name, kind, typeExpr string, exported bool, span, nameSpan syntax.Span) int {
	b.g.Symbols = append(b.g.Symbols, Symbol{
		Name:     name,
		Kind:     kind,
		Scope:    b.scope,
		Parent:   b.enclosing,
		Exported: exported,
		TypeExpr: typeExpr,
		Span:     span,
		NameSpan: nameSpan,
	})
	return len(b.g.Symbols) - 1
}

// addRef records one edge candidate in the current scope.
func (b *builder) addRef(name, qualifier, context string, span syntax.Span) {
	if name == "" {
		return
	}
	b.g.Refs = append(b.g.Refs, Ref{
		Name:      name,
		Qualifier: qualifier,
		Context:   context,
		Scope:     b.scope,
		Enclosing: b.enclosing,
		Span:      span,
	})
}

// stemModule is the shared module-name derivation: the file's base name
// without extension.
func stemModule(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
