package graft

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jward/graft/internal/lang"
	"github.com/jward/graft/internal/resolve"
	"github.com/jward/graft/internal/store"
)

// TextEdit is one staged byte-range replacement in one file.
// Replacement may be empty (a deletion) and the range may be empty (an
// insertion).
type TextEdit struct {
	Path        string
	StartByte   int64
	EndByte     int64
	Replacement string
}

// Tx stages graph-derived text edits and applies them atomically.
// Staging only reads; nothing changes on disk or in the graph until
// Commit. A Tx is not safe for concurrent use.
type Tx struct {
	id string
	e  *Engine

	generation uint64
	edits      []TextEdit
	creates    map[string]bool // paths that may not exist yet
	removes    []string
	closed     bool
}

// Begin opens a mutation transaction against the current graph.
func (e *Engine) Begin() *Tx {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return &Tx{
		id:         uuid.NewString(),
		e:          e,
		generation: e.generation,
		creates:    make(map[string]bool),
	}
}

// ID returns the transaction's unique identifier, for logging.
func (tx *Tx) ID() string {
	return tx.id
}

// Edits returns the edits staged so far, in staging order.
func (tx *Tx) Edits() []TextEdit {
	out := make([]TextEdit, len(tx.edits))
	copy(out, tx.edits)
	return out
}

func (tx *Tx) check() error {
	if tx.closed {
		return ErrTxClosed
	}
	if tx.e.generation != tx.generation {
		return ErrStaleTx
	}
	return nil
}

// Rename stages a rename of a symbol and every reference bound to it.
// References that use the symbol under another local name (an import or
// re-export alias) keep their text; the import clause that binds the
// original name is rewritten instead. It fails with ErrNamingConflict
// when the new name is already visible, lexically or through an import,
// in the declaring scope or in any scope that uses the symbol.
func (tx *Tx) Rename(symbolID int64, newName string) error {
	tx.e.mu.RLock()
	defer tx.e.mu.RUnlock()
	if err := tx.check(); err != nil {
		return err
	}

	sym, err := tx.e.store.SymbolByID(symbolID)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if sym == nil {
		return fmt.Errorf("rename symbol %d: %w", symbolID, ErrSymbolNotFound)
	}
	if newName == sym.Name {
		return nil
	}

	// Conflict check: the new name must not already be visible where
	// the symbol is declared or anywhere it is used.
	if err := tx.renameConflict(sym, newName); err != nil {
		return err
	}

	// The import-clause ref of a plain named import resolves too, so the
	// same span can arrive twice. One edit per span.
	staged := make(map[TextEdit]bool)
	stageOnce := func(edit TextEdit) {
		if staged[edit] {
			return
		}
		staged[edit] = true
		tx.stage(edit)
	}

	file, err := tx.e.store.FileByID(sym.FileID)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	stageOnce(TextEdit{Path: file.Path, StartByte: sym.NameStart, EndByte: sym.NameEnd, Replacement: newName})

	usages, err := tx.boundRefs(symbolID)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	for _, ref := range usages {
		if ref.Name != sym.Name {
			// Alias-bound use site; its text does not carry the old name.
			continue
		}
		refFile, err := tx.e.store.FileByID(ref.FileID)
		if err != nil {
			return fmt.Errorf("rename: %w", err)
		}
		stageOnce(TextEdit{Path: refFile.Path, StartByte: ref.StartByte, EndByte: ref.EndByte, Replacement: newName})
	}

	// Import clauses binding the symbol carry its declared name even when
	// every use site goes through an alias.
	bindings, err := tx.e.store.ImportBindingsByTarget(symbolID)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	for _, binding := range bindings {
		imp, err := tx.e.store.ImportByID(binding.ImportID)
		if err != nil {
			return fmt.Errorf("rename: %w", err)
		}
		if imp == nil || imp.ImportedName != sym.Name || imp.NameEnd == 0 {
			continue
		}
		impFile, err := tx.e.store.FileByID(imp.FileID)
		if err != nil {
			return fmt.Errorf("rename: %w", err)
		}
		stageOnce(TextEdit{Path: impFile.Path, StartByte: imp.NameStart, EndByte: imp.NameEnd, Replacement: newName})
	}
	return nil
}

func (tx *Tx) renameConflict(sym *store.Symbol, newName string) error {
	type scopeRef struct{ fileID, scopeID int64 }
	checked := make(map[scopeRef]bool)
	checkedFiles := make(map[int64]bool)

	// Import-introduced bindings are file-wide, so one check per file.
	checkImports := func(fileID int64) error {
		if checkedFiles[fileID] {
			return nil
		}
		checkedFiles[fileID] = true
		imports, err := tx.e.store.ImportsByFile(fileID)
		if err != nil {
			return fmt.Errorf("rename conflict check: %w", err)
		}
		for _, imp := range imports {
			if resolve.LocalName(imp) == newName {
				return fmt.Errorf("rename %s to %s: %q already bound by an import: %w",
					sym.Name, newName, newName, ErrNamingConflict)
			}
		}
		return nil
	}

	checkScope := func(fileID, scopeID int64) error {
		if err := checkImports(fileID); err != nil {
			return err
		}
		key := scopeRef{fileID, scopeID}
		if checked[key] {
			return nil
		}
		checked[key] = true
		existing, err := tx.e.resolver.LookupVisible(fileID, scopeID, newName)
		if err != nil {
			return fmt.Errorf("rename conflict check: %w", err)
		}
		for _, other := range existing {
			if other.ID != sym.ID {
				return fmt.Errorf("rename %s to %s: %q already visible: %w",
					sym.Name, newName, newName, ErrNamingConflict)
			}
		}
		return nil
	}

	if err := checkScope(sym.FileID, sym.ScopeID); err != nil {
		return err
	}
	usages, err := tx.boundRefs(sym.ID)
	if err != nil {
		return fmt.Errorf("rename conflict check: %w", err)
	}
	for _, ref := range usages {
		if err := checkScope(ref.FileID, ref.ScopeID); err != nil {
			return err
		}
	}
	return nil
}

// boundRefs returns the refs bound to a symbol, in deterministic order.
func (tx *Tx) boundRefs(symbolID int64) ([]*store.Ref, error) {
	resolved, err := tx.e.store.ResolvedRefsByTarget(symbolID)
	if err != nil {
		return nil, err
	}
	var refs []*store.Ref
	for _, rr := range resolved {
		ref, err := tx.e.store.RefByID(rr.RefID)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].FileID != refs[j].FileID {
			return refs[i].FileID < refs[j].FileID
		}
		return refs[i].StartByte < refs[j].StartByte
	})
	return refs, nil
}

// Delete stages removal of a symbol's whole declaration. Without force
// it fails with ErrSymbolInUse when references outside the declaration
// itself are still bound to it.
func (tx *Tx) Delete(symbolID int64, force bool) error {
	tx.e.mu.RLock()
	defer tx.e.mu.RUnlock()
	if err := tx.check(); err != nil {
		return err
	}

	sym, err := tx.e.store.SymbolByID(symbolID)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if sym == nil {
		return fmt.Errorf("delete symbol %d: %w", symbolID, ErrSymbolNotFound)
	}

	if !force {
		usages, err := tx.boundRefs(symbolID)
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		external := 0
		for _, ref := range usages {
			// Uses inside the declaration (recursion, self-reference)
			// disappear with it.
			if ref.FileID == sym.FileID && ref.StartByte >= sym.StartByte && ref.EndByte <= sym.EndByte {
				continue
			}
			external++
		}
		if external > 0 {
			return fmt.Errorf("delete %s: %d reference(s) still bound: %w", sym.Name, external, ErrSymbolInUse)
		}
	}

	file, err := tx.e.store.FileByID(sym.FileID)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	start, end, err := tx.declarationSpan(file.Path, sym)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	tx.stage(TextEdit{Path: file.Path, StartByte: start, EndByte: end})
	return nil
}

// declarationSpan widens a symbol's span to swallow one trailing
// newline, so deleting a declaration does not leave a blank line.
func (tx *Tx) declarationSpan(path string, sym *store.Symbol) (int64, int64, error) {
	content, err := tx.e.repo.Read(path)
	if err != nil {
		return 0, 0, err
	}
	start, end := sym.StartByte, sym.EndByte
	if end < int64(len(content)) && content[end] == '\n' {
		end++
	}
	return start, end, nil
}

// EditSymbol stages replacement of a symbol's whole declaration text.
func (tx *Tx) EditSymbol(symbolID int64, newText string) error {
	tx.e.mu.RLock()
	defer tx.e.mu.RUnlock()
	if err := tx.check(); err != nil {
		return err
	}
	sym, err := tx.e.store.SymbolByID(symbolID)
	if err != nil {
		return fmt.Errorf("edit symbol: %w", err)
	}
	if sym == nil {
		return fmt.Errorf("edit symbol %d: %w", symbolID, ErrSymbolNotFound)
	}
	file, err := tx.e.store.FileByID(sym.FileID)
	if err != nil {
		return fmt.Errorf("edit symbol: %w", err)
	}
	tx.stage(TextEdit{Path: file.Path, StartByte: sym.StartByte, EndByte: sym.EndByte, Replacement: newText})
	return nil
}

// Edit stages a raw byte-range replacement. The range is validated at
// commit, against the file bytes being rewritten.
func (tx *Tx) Edit(path string, startByte, endByte int64, replacement string) error {
	tx.e.mu.RLock()
	defer tx.e.mu.RUnlock()
	if err := tx.check(); err != nil {
		return err
	}
	if startByte < 0 || endByte < startByte {
		return fmt.Errorf("edit %s: invalid range [%d, %d)", path, startByte, endByte)
	}
	tx.stage(TextEdit{Path: path, StartByte: startByte, EndByte: endByte, Replacement: replacement})
	return nil
}

// AddSymbol stages appending a declaration to a file, creating the file
// if it does not exist.
func (tx *Tx) AddSymbol(path, text string) error {
	tx.e.mu.RLock()
	defer tx.e.mu.RUnlock()
	if err := tx.check(); err != nil {
		return err
	}
	return tx.appendTo(path, text)
}

func (tx *Tx) appendTo(path, text string) error {
	content, err := tx.e.repo.Read(path)
	if err != nil {
		// New file.
		tx.creates[path] = true
		tx.stage(TextEdit{Path: path, Replacement: text})
		return nil
	}
	insert := text
	if len(content) > 0 && content[len(content)-1] != '\n' {
		insert = "\n" + insert
	}
	at := int64(len(content))
	tx.stage(TextEdit{Path: path, StartByte: at, EndByte: at, Replacement: insert})
	return nil
}

// MoveToFile stages moving a symbol's declaration to another file:
// the declaration text is cut from its file, appended to the target,
// and the imports of every file still using the symbol are repaired to
// point at the target. With MoveReexports enabled, languages that have
// a re-export form get one left behind at the old location.
func (tx *Tx) MoveToFile(symbolID int64, targetPath string) error {
	tx.e.mu.RLock()
	defer tx.e.mu.RUnlock()
	if err := tx.check(); err != nil {
		return err
	}

	sym, err := tx.e.store.SymbolByID(symbolID)
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	if sym == nil {
		return fmt.Errorf("move symbol %d: %w", symbolID, ErrSymbolNotFound)
	}
	srcFile, err := tx.e.store.FileByID(sym.FileID)
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	if srcFile.Path == targetPath {
		return nil
	}
	ext, ok := tx.e.registry.ForFile(targetPath)
	if !ok || ext.Language() != srcFile.Language {
		return fmt.Errorf("move %s: target %s is not a %s file", sym.Name, targetPath, srcFile.Language)
	}

	content, err := tx.e.repo.Read(srcFile.Path)
	if err != nil {
		return fmt.Errorf("move: read source: %w", err)
	}
	if sym.EndByte > int64(len(content)) {
		return fmt.Errorf("move %s: %w", sym.Name, ErrStaleTx)
	}
	declText := string(content[sym.StartByte:sym.EndByte])

	// Cut from the source.
	start, end, err := tx.declarationSpan(srcFile.Path, sym)
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	tx.stage(TextEdit{Path: srcFile.Path, StartByte: start, EndByte: end})

	// Append to the target.
	if err := tx.appendTo(targetPath, declText+"\n"); err != nil {
		return fmt.Errorf("move: %w", err)
	}

	targetModule := ext.ModuleName(targetPath)

	// Optional compatibility re-export at the old location.
	if tx.e.cfg.MoveReexports {
		if re := ext.RenderReexport(targetModule, sym.Name); re != "" {
			if err := tx.appendTo(srcFile.Path, re+"\n"); err != nil {
				return fmt.Errorf("move: %w", err)
			}
		}
	}

	// Import repair in every file still referring to the symbol.
	if err := tx.repairImports(sym, srcFile, ext, targetModule, targetPath); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	return nil
}

// repairImports redirects referencing files at the symbol's new home:
// named imports of the symbol change source, files importing only the
// old module gain an import of the new one.
func (tx *Tx) repairImports(sym *store.Symbol, srcFile *store.File, ext lang.Extractor, targetModule, targetPath string) error {
	usages, err := tx.boundRefs(sym.ID)
	if err != nil {
		return err
	}
	byFile := make(map[int64][]*store.Ref)
	for _, ref := range usages {
		byFile[ref.FileID] = append(byFile[ref.FileID], ref)
	}
	var fileIDs []int64
	for fid := range byFile {
		fileIDs = append(fileIDs, fid)
	}
	sort.Slice(fileIDs, func(i, j int) bool { return fileIDs[i] < fileIDs[j] })

	for _, fid := range fileIDs {
		if fid == srcFile.ID {
			continue // same-file uses follow the declaration implicitly
		}
		refFile, err := tx.e.store.FileByID(fid)
		if err != nil {
			return err
		}
		if refFile.Path == targetPath {
			continue
		}
		imports, err := tx.e.store.ImportsByFile(fid)
		if err != nil {
			return err
		}

		// A named import of the symbol gets rewritten in place.
		var namedOfSymbol *store.Import
		alreadyImportsTarget := false
		for _, imp := range imports {
			if resolve.ModuleStem(imp.Source) == targetModule {
				alreadyImportsTarget = true
			}
			if imp.Kind == "named" && imp.ImportedName == sym.Name && resolve.ModuleStem(imp.Source) == srcFile.Module {
				namedOfSymbol = imp
			}
		}
		switch {
		case namedOfSymbol != nil:
			// Re-render the whole clause: sibling names it carried stay
			// imported from the old module, the moved name imports from
			// the target.
			var parts []string
			for _, imp := range imports {
				if imp.ID == namedOfSymbol.ID || imp.Kind != "named" ||
					imp.StartByte != namedOfSymbol.StartByte || imp.EndByte != namedOfSymbol.EndByte {
					continue
				}
				parts = append(parts, strings.TrimRight(ext.RenderImport(imp.Source, imp.ImportedName, imp.LocalAlias), "\n"))
			}
			parts = append(parts, strings.TrimRight(ext.RenderImport(targetModule, sym.Name, namedOfSymbol.LocalAlias), "\n"))
			tx.stage(TextEdit{
				Path:        refFile.Path,
				StartByte:   namedOfSymbol.StartByte,
				EndByte:     namedOfSymbol.EndByte,
				Replacement: strings.Join(parts, "\n"),
			})
		case !alreadyImportsTarget:
			rendered := ext.RenderImport(targetModule, sym.Name, "")
			if rendered == "" {
				continue
			}
			at := importInsertionPoint(imports)
			tx.stage(TextEdit{Path: refFile.Path, StartByte: at, EndByte: at, Replacement: rendered + "\n"})
		}
	}
	return nil
}

// importInsertionPoint is the byte offset where a new import statement
// goes: after the last existing import, else the top of the file.
func importInsertionPoint(imports []*store.Import) int64 {
	var at int64
	for _, imp := range imports {
		if imp.EndByte > at {
			at = imp.EndByte
		}
	}
	if at > 0 {
		at++ // past the newline ending the last import line
	}
	return at
}

// RemoveFile stages deletion of a whole file.
func (tx *Tx) RemoveFile(path string) error {
	tx.e.mu.RLock()
	defer tx.e.mu.RUnlock()
	if err := tx.check(); err != nil {
		return err
	}
	tx.removes = append(tx.removes, path)
	return nil
}

func (tx *Tx) stage(edit TextEdit) {
	tx.edits = append(tx.edits, edit)
}

// Rollback discards the transaction. Staged edits never touched disk,
// so there is nothing to undo.
func (tx *Tx) Rollback() {
	tx.closed = true
}

// Commit validates the staged edits, rewrites every touched file, and
// brings the graph up to date by reindexing exactly those files. If any
// validation fails, nothing is written and the graph is unchanged.
func (tx *Tx) Commit(ctx context.Context) error {
	tx.e.mu.Lock()
	defer tx.e.mu.Unlock()
	if err := tx.check(); err != nil {
		return err
	}
	tx.closed = true

	if len(tx.edits) == 0 && len(tx.removes) == 0 {
		return nil
	}

	rewritten, err := tx.applyStaged()
	if err != nil {
		return err
	}

	// Point of no return: flush through the repository.
	var touched []string
	for path, content := range rewritten {
		if err := tx.e.repo.Write(path, content); err != nil {
			return fmt.Errorf("tx %s: write %s: %w", tx.id, path, err)
		}
		touched = append(touched, path)
	}
	sort.Strings(touched)
	for _, path := range tx.removes {
		if err := tx.e.repo.Remove(path); err != nil {
			return fmt.Errorf("tx %s: remove %s: %w", tx.id, path, err)
		}
		if err := tx.e.removeFileLocked(path); err != nil {
			return fmt.Errorf("tx %s: drop %s from graph: %w", tx.id, path, err)
		}
	}

	// Reindex the touched files and re-resolve their blast radius.
	if err := tx.e.indexFilesLocked(ctx, touched); err != nil {
		return fmt.Errorf("tx %s: reindex: %w", tx.id, err)
	}
	if err := tx.e.resolveLocked(ctx); err != nil {
		return fmt.Errorf("tx %s: resolve: %w", tx.id, err)
	}
	return nil
}

// applyStaged computes the rewritten content of every edited file
// without writing anything. Overlapping edits and out-of-range edits
// fail the whole transaction here.
func (tx *Tx) applyStaged() (map[string][]byte, error) {
	byPath := make(map[string][]TextEdit)
	for _, edit := range tx.edits {
		byPath[edit.Path] = append(byPath[edit.Path], edit)
	}

	rewritten := make(map[string][]byte, len(byPath))
	for path, edits := range byPath {
		var content []byte
		if !tx.creates[path] {
			var err error
			content, err = tx.e.repo.Read(path)
			if err != nil {
				return nil, fmt.Errorf("tx %s: read %s: %w", tx.id, path, err)
			}
		}

		// Stable sort keeps staging order for insertions at one point.
		sort.SliceStable(edits, func(i, j int) bool { return edits[i].StartByte < edits[j].StartByte })

		var buf []byte
		var pos int64
		for _, edit := range edits {
			if edit.StartByte < pos {
				return nil, fmt.Errorf("tx %s: %s: edit [%d,%d) overlaps an earlier edit: %w",
					tx.id, path, edit.StartByte, edit.EndByte, ErrOverlappingEdits)
			}
			if edit.EndByte > int64(len(content)) {
				return nil, fmt.Errorf("tx %s: %s: edit [%d,%d) beyond %d bytes: %w",
					tx.id, path, edit.StartByte, edit.EndByte, len(content), ErrStaleTx)
			}
			buf = append(buf, content[pos:edit.StartByte]...)
			buf = append(buf, edit.Replacement...)
			pos = edit.EndByte
		}
		buf = append(buf, content[pos:]...)
		rewritten[path] = buf
	}
	return rewritten, nil
}
