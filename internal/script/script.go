// Package script embeds a Risor VM over the graph's query surface, so
// users can write ad-hoc analyses (lint rules, architecture checks,
// reports) without recompiling. Scripts get read-only host functions;
// mutation stays behind the typed transaction API.
package script

import (
	"context"
	"fmt"
	"os"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/jward/graft/internal/store"
)

// Runtime evaluates Risor source with the graph query globals bound.
type Runtime struct {
	store *store.Store
}

// NewRuntime wires a Runtime to the given store.
func NewRuntime(s *store.Store) *Runtime {
	return &Runtime{store: s}
}

// RunScript loads and evaluates a .risor file. The final expression
// value is returned as a plain Go value.
func (r *Runtime) RunScript(ctx context.Context, path string) (any, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: load %s: %w", path, err)
	}
	return r.RunSource(ctx, string(src))
}

// RunSource evaluates Risor source directly.
func (r *Runtime) RunSource(ctx context.Context, source string) (any, error) {
	opts := []risor.Option{
		risor.WithGlobal("symbols_by_name", r.symbolsByNameFn()),
		risor.WithGlobal("symbols_by_file", r.symbolsByFileFn()),
		risor.WithGlobal("file_by_path", r.fileByPathFn()),
		risor.WithGlobal("files", r.filesFn()),
		risor.WithGlobal("usages_of", r.usagesOfFn()),
		risor.WithGlobal("callers_of", r.callersOfFn()),
		risor.WithGlobal("callees_of", r.calleesOfFn()),
		risor.WithGlobal("imports_by_file", r.importsByFileFn()),
		risor.WithGlobal("unresolved_refs", r.unresolvedRefsFn()),
	}
	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	return result.Interface(), nil
}

func (r *Runtime) symbolsByNameFn() *object.Builtin {
	return object.NewBuiltin("symbols_by_name", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbols_by_name", 1, len(args))
		}
		name, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("symbols_by_name: expected string, got %s", args[0].Type())
		}
		syms, err := r.store.SymbolsByName(name.Value())
		if err != nil {
			return object.Errorf("symbols_by_name: %v", err)
		}
		return symbolsToList(syms)
	})
}

func (r *Runtime) symbolsByFileFn() *object.Builtin {
	return object.NewBuiltin("symbols_by_file", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbols_by_file", 1, len(args))
		}
		fileID, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("symbols_by_file: %v", err)
		}
		syms, qerr := r.store.SymbolsByFile(fileID)
		if qerr != nil {
			return object.Errorf("symbols_by_file: %v", qerr)
		}
		return symbolsToList(syms)
	})
}

func (r *Runtime) fileByPathFn() *object.Builtin {
	return object.NewBuiltin("file_by_path", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("file_by_path", 1, len(args))
		}
		path, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("file_by_path: expected string, got %s", args[0].Type())
		}
		f, err := r.store.FileByPath(path.Value())
		if err != nil {
			return object.Errorf("file_by_path: %v", err)
		}
		if f == nil {
			return object.Nil
		}
		return fileToMap(f)
	})
}

func (r *Runtime) filesFn() *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("files", 0, len(args))
		}
		files, err := r.store.AllFiles()
		if err != nil {
			return object.Errorf("files: %v", err)
		}
		results := make([]object.Object, 0, len(files))
		for _, f := range files {
			results = append(results, fileToMap(f))
		}
		return object.NewList(results)
	})
}

func (r *Runtime) usagesOfFn() *object.Builtin {
	return object.NewBuiltin("usages_of", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("usages_of", 1, len(args))
		}
		symbolID, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("usages_of: %v", err)
		}
		resolved, qerr := r.store.ResolvedRefsByTarget(symbolID)
		if qerr != nil {
			return object.Errorf("usages_of: %v", qerr)
		}
		var refs []*store.Ref
		for _, rr := range resolved {
			ref, rerr := r.store.RefByID(rr.RefID)
			if rerr != nil {
				return object.Errorf("usages_of: %v", rerr)
			}
			if ref != nil {
				refs = append(refs, ref)
			}
		}
		return refsToList(refs)
	})
}

func (r *Runtime) callersOfFn() *object.Builtin {
	return object.NewBuiltin("callers_of", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("callers_of", 1, len(args))
		}
		symbolID, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("callers_of: %v", err)
		}
		edges, qerr := r.store.CallersByCallee(symbolID)
		if qerr != nil {
			return object.Errorf("callers_of: %v", qerr)
		}
		return callEdgesToList(edges)
	})
}

func (r *Runtime) calleesOfFn() *object.Builtin {
	return object.NewBuiltin("callees_of", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("callees_of", 1, len(args))
		}
		symbolID, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("callees_of: %v", err)
		}
		edges, qerr := r.store.CalleesByCaller(symbolID)
		if qerr != nil {
			return object.Errorf("callees_of: %v", qerr)
		}
		return callEdgesToList(edges)
	})
}

func (r *Runtime) importsByFileFn() *object.Builtin {
	return object.NewBuiltin("imports_by_file", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("imports_by_file", 1, len(args))
		}
		fileID, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("imports_by_file: %v", err)
		}
		imports, qerr := r.store.ImportsByFile(fileID)
		if qerr != nil {
			return object.Errorf("imports_by_file: %v", qerr)
		}
		results := make([]object.Object, 0, len(imports))
		for _, imp := range imports {
			results = append(results, object.NewMap(map[string]object.Object{
				"id":            object.NewInt(imp.ID),
				"file_id":       object.NewInt(imp.FileID),
				"source":        object.NewString(imp.Source),
				"imported_name": object.NewString(imp.ImportedName),
				"local_alias":   object.NewString(imp.LocalAlias),
				"kind":          object.NewString(imp.Kind),
			}))
		}
		return object.NewList(results)
	})
}

func (r *Runtime) unresolvedRefsFn() *object.Builtin {
	return object.NewBuiltin("unresolved_refs", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("unresolved_refs", 0, len(args))
		}
		refs, err := r.store.UnresolvedRefs()
		if err != nil {
			return object.Errorf("unresolved_refs: %v", err)
		}
		return refsToList(refs)
	})
}

// --- conversion helpers ---

func symbolsToList(syms []*store.Symbol) object.Object {
	results := make([]object.Object, 0, len(syms))
	for _, sym := range syms {
		m := map[string]object.Object{
			"id":         object.NewInt(sym.ID),
			"file_id":    object.NewInt(sym.FileID),
			"name":       object.NewString(sym.Name),
			"kind":       object.NewString(sym.Kind),
			"type_expr":  object.NewString(sym.TypeExpr),
			"exported":   object.NewBool(sym.Exported),
			"start_byte": object.NewInt(sym.StartByte),
			"end_byte":   object.NewInt(sym.EndByte),
			"start_line": object.NewInt(int64(sym.StartLine)),
			"start_col":  object.NewInt(int64(sym.StartCol)),
		}
		if sym.ParentSymbolID != nil {
			m["parent_symbol_id"] = object.NewInt(*sym.ParentSymbolID)
		}
		results = append(results, object.NewMap(m))
	}
	return object.NewList(results)
}

func refsToList(refs []*store.Ref) object.Object {
	results := make([]object.Object, 0, len(refs))
	for _, ref := range refs {
		results = append(results, object.NewMap(map[string]object.Object{
			"id":         object.NewInt(ref.ID),
			"file_id":    object.NewInt(ref.FileID),
			"name":       object.NewString(ref.Name),
			"qualifier":  object.NewString(ref.Qualifier),
			"context":    object.NewString(ref.Context),
			"start_byte": object.NewInt(ref.StartByte),
			"end_byte":   object.NewInt(ref.EndByte),
			"start_line": object.NewInt(int64(ref.StartLine)),
			"start_col":  object.NewInt(int64(ref.StartCol)),
		}))
	}
	return object.NewList(results)
}

func callEdgesToList(edges []*store.CallEdge) object.Object {
	results := make([]object.Object, 0, len(edges))
	for _, e := range edges {
		m := map[string]object.Object{
			"id":               object.NewInt(e.ID),
			"callee_symbol_id": object.NewInt(e.CalleeSymbolID),
			"ref_id":           object.NewInt(e.RefID),
		}
		if e.CallerSymbolID != nil {
			m["caller_symbol_id"] = object.NewInt(*e.CallerSymbolID)
		}
		results = append(results, object.NewMap(m))
	}
	return object.NewList(results)
}

func fileToMap(f *store.File) object.Object {
	return object.NewMap(map[string]object.Object{
		"id":       object.NewInt(f.ID),
		"path":     object.NewString(f.Path),
		"language": object.NewString(f.Language),
		"module":   object.NewString(f.Module),
	})
}

func toInt64(obj object.Object) (int64, error) {
	i, ok := obj.(*object.Int)
	if !ok {
		return 0, fmt.Errorf("expected int, got %s", obj.Type())
	}
	return i.Value(), nil
}
