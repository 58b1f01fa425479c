package resolve

import (
	"path/filepath"
	"strings"

	"github.com/jward/graft/internal/store"
)

// LocalName is the name an import binds in its file: the alias if
// present, the imported name for named imports, otherwise the last
// segment of the source path.
func LocalName(imp *store.Import) string {
	if imp.LocalAlias != "" {
		return imp.LocalAlias
	}
	if imp.ImportedName != "" {
		return imp.ImportedName
	}
	return ModuleStem(imp.Source)
}

// ModuleStem extracts the module stem from an import source: the final
// path or dotted segment, with relative markers and extensions dropped.
// "./util", "pkg/util", "pkg.util", and ".util" all yield "util".
func ModuleStem(source string) string {
	s := strings.TrimSpace(source)
	s = strings.TrimSuffix(s, ".js")
	s = strings.TrimSuffix(s, ".ts")
	s = strings.ReplaceAll(s, "\\", "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// filesForSource resolves an import source string to candidate files:
// the configured override wins, then module-stem matching with files in
// the importer's directory preferred. Multiple candidates surface as an
// ambiguous binding rather than a guess.
func (r *Resolver) filesForSource(importerPath, source string) ([]*store.File, error) {
	if override, ok := r.cfg.ImportOverrides[source]; ok {
		f, err := r.store.FileByPath(override)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, nil
		}
		return []*store.File{f}, nil
	}

	stem := ModuleStem(source)
	if stem == "" {
		return nil, nil
	}
	files, err := r.store.FilesByModule(stem)
	if err != nil {
		return nil, err
	}
	if len(files) <= 1 {
		return files, nil
	}
	importerDir := filepath.Dir(importerPath)
	var sameDir []*store.File
	for _, f := range files {
		if filepath.Dir(f.Path) == importerDir {
			sameDir = append(sameDir, f)
		}
	}
	if len(sameDir) > 0 {
		return sameDir, nil
	}
	return files, nil
}

// lookupExported finds the exported declaration of name in a file,
// following explicit re-exports and pass-through named imports
// transitively. hops guards against import cycles.
func (r *Resolver) lookupExported(f *store.File, name string, hops int) (syms []*store.Symbol, tripped bool, err error) {
	if hops > r.cfg.hopLimit() {
		return nil, true, nil
	}

	fileScope, err := r.store.FileScopeID(f.ID)
	if err != nil {
		return nil, false, err
	}
	declared, err := r.store.SymbolsInScope(fileScope, name)
	if err != nil {
		return nil, false, err
	}
	for _, sym := range declared {
		if sym.Exported {
			return []*store.Symbol{sym}, false, nil
		}
	}

	// Explicit re-export clauses: export { name } from "./m".
	reexports, err := r.store.ReexportsByFile(f.ID)
	if err != nil {
		return nil, false, err
	}
	for _, re := range reexports {
		if re.ExportedName != name || re.Source == "" {
			continue
		}
		files, err := r.filesForSource(f.Path, re.Source)
		if err != nil {
			return nil, false, err
		}
		for _, target := range files {
			found, trip, err := r.lookupExported(target, name, hops+1)
			if err != nil {
				return nil, false, err
			}
			if trip {
				return nil, true, nil
			}
			syms = append(syms, found...)
		}
		if len(syms) > 0 {
			return syms, false, nil
		}
	}

	// Pass-through named imports: "from a import f" in this file makes
	// f importable from it in turn.
	imports, err := r.store.ImportsByFile(f.ID)
	if err != nil {
		return nil, false, err
	}
	for _, imp := range imports {
		if imp.Kind != "named" || LocalName(imp) != name {
			continue
		}
		files, err := r.filesForSource(f.Path, imp.Source)
		if err != nil {
			return nil, false, err
		}
		for _, target := range files {
			found, trip, err := r.lookupExported(target, imp.ImportedName, hops+1)
			if err != nil {
				return nil, false, err
			}
			if trip {
				return nil, true, nil
			}
			syms = append(syms, found...)
		}
		if len(syms) > 0 {
			return syms, false, nil
		}
	}

	return nil, false, nil
}

// resolveViaImports binds a plain name against the file's imports:
// named imports whose local binding matches, then wildcard imports.
// Candidates inside an import clause match on the imported name, so the
// original-name position of an aliased import binds too.
func (r *Resolver) resolveViaImports(fc *fileContext, ref *store.Ref, boundImports map[int64]bool) (outcome, error) {
	var targets []*store.Symbol
	for _, imp := range fc.imports {
		switch {
		case imp.Kind == "named" && (LocalName(imp) == ref.Name ||
			(ref.Context == "import" && imp.ImportedName == ref.Name)):
			files, err := r.filesForSource(fc.file.Path, imp.Source)
			if err != nil {
				return unresolved(), err
			}
			for _, f := range files {
				syms, tripped, err := r.lookupExported(f, imp.ImportedName, 0)
				if err != nil {
					return unresolved(), err
				}
				if tripped {
					return cycleGuard(), nil
				}
				if len(syms) > 0 {
					if err := r.bindImport(imp, f, syms[0], boundImports); err != nil {
						return unresolved(), err
					}
					targets = append(targets, syms...)
				}
			}
		case imp.Kind == "namespace" && imp.LocalAlias == "":
			// Wildcard import: every export of the source is in scope.
			files, err := r.filesForSource(fc.file.Path, imp.Source)
			if err != nil {
				return unresolved(), err
			}
			for _, f := range files {
				syms, tripped, err := r.lookupExported(f, ref.Name, 0)
				if err != nil {
					return unresolved(), err
				}
				if tripped {
					return cycleGuard(), nil
				}
				if len(syms) > 0 {
					if err := r.bindImport(imp, f, syms[0], boundImports); err != nil {
						return unresolved(), err
					}
					targets = append(targets, syms...)
				}
			}
		}
		if len(targets) > 0 {
			break // nearest matching import wins
		}
	}
	if len(targets) == 0 {
		return unresolved(), nil
	}
	if len(targets) == 1 {
		return resolvedAs(targets[0], store.ResolveImport), nil
	}
	return outcome{targets: dedupeSymbols(targets), kind: store.ResolveImport}, nil
}

// resolveQualified binds pkg.Name / mod.attr candidates: the qualifier
// must be a module or namespace import; the name is then looked up among
// the target module's exports. Qualifiers that are ordinary values
// (method receivers, object attributes) stay unresolved.
func (r *Resolver) resolveQualified(fc *fileContext, ref *store.Ref, boundImports map[int64]bool) (outcome, error) {
	var targets []*store.Symbol
	for _, imp := range fc.imports {
		if imp.Kind == "named" || LocalName(imp) != ref.Qualifier {
			continue
		}
		files, err := r.filesForSource(fc.file.Path, imp.Source)
		if err != nil {
			return unresolved(), err
		}
		for _, f := range files {
			syms, tripped, err := r.lookupExported(f, ref.Name, 0)
			if err != nil {
				return unresolved(), err
			}
			if tripped {
				return cycleGuard(), nil
			}
			if len(syms) > 0 {
				if err := r.bindImport(imp, f, syms[0], boundImports); err != nil {
					return unresolved(), err
				}
				targets = append(targets, syms...)
			}
		}
		if len(targets) > 0 {
			break
		}
	}
	if len(targets) == 0 {
		return unresolved(), nil
	}
	if len(targets) == 1 {
		return resolvedAs(targets[0], store.ResolveImport), nil
	}
	return outcome{targets: dedupeSymbols(targets), kind: store.ResolveImport}, nil
}

func (r *Resolver) bindImport(imp *store.Import, target *store.File, sym *store.Symbol, boundImports map[int64]bool) error {
	if boundImports[imp.ID] {
		return nil
	}
	boundImports[imp.ID] = true
	binding := &store.ImportBinding{ImportID: imp.ID, TargetFileID: target.ID}
	if sym != nil && imp.Kind == "named" {
		binding.TargetSymbolID = &sym.ID
	}
	_, err := r.store.InsertImportBinding(binding)
	return err
}

func dedupeSymbols(syms []*store.Symbol) []*store.Symbol {
	seen := make(map[int64]bool, len(syms))
	var out []*store.Symbol
	for _, s := range syms {
		if !seen[s.ID] {
			seen[s.ID] = true
			out = append(out, s)
		}
	}
	return out
}
