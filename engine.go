package graft

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/jward/graft/internal/lang"
	"github.com/jward/graft/internal/resolve"
	"github.com/jward/graft/internal/store"
	"github.com/jward/graft/internal/syntax"
)

// Engine orchestrates the graft pipeline: file discovery, change
// detection, extraction, resolution, queries, and mutations.
//
// One goroutine may mutate (index, resolve, commit transactions) while
// any number query; the engine serializes writers and excludes them
// from readers with an internal RWMutex.
type Engine struct {
	store    *store.Store
	registry *lang.Registry
	resolver *resolve.Resolver
	repo     Repository
	cfg      Config

	// mu is the single-writer / multi-reader gate over the graph.
	mu sync.RWMutex

	// generation increments on every write to the graph. Open
	// transactions use it to detect that their staged byte offsets
	// went stale.
	generation uint64

	languages map[string]bool // nil means all languages

	// blastRadius accumulates file IDs that need re-resolution after
	// indexing. nil means "resolve everything" (first run or full
	// reindex).
	blastRadius map[int64]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig applies a full configuration, usually loaded from YAML.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLanguages restricts which languages the Engine will process.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.cfg.Languages = languages
	}
}

// WithStorePath backs the graph with a SQLite database on disk instead
// of memory, so it survives the process.
func WithStorePath(path string) Option {
	return func(e *Engine) {
		e.cfg.StorePath = path
	}
}

// WithRepository replaces the source-text boundary. The default reads
// and writes the real filesystem.
func WithRepository(repo Repository) Option {
	return func(e *Engine) {
		e.repo = repo
	}
}

// WithParallel controls parallel extraction. When true (default),
// IndexFiles parses with a worker pool and a single goroutine commits
// results to the store. Set false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.cfg.Parallel = &parallel
	}
}

// WithMoveReexports makes Tx.MoveToFile leave a compatibility re-export
// behind in the source file, for languages that have a form for it.
func WithMoveReexports(enabled bool) Option {
	return func(e *Engine) {
		e.cfg.MoveReexports = enabled
	}
}

// New creates an Engine. By default the graph lives in memory and
// source text comes from the filesystem.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		registry: lang.NewRegistry(),
		repo:     OSRepository{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.cfg.Languages) > 0 {
		e.languages = make(map[string]bool, len(e.cfg.Languages))
		for _, l := range e.cfg.Languages {
			e.languages[l] = true
		}
	}

	path := e.cfg.StorePath
	if path == "" {
		path = store.MemoryPath
	}
	s, err := store.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("graft: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("graft: migrate: %w", err)
	}
	e.store = s
	e.resolver = resolve.New(s, e.cfg.resolverConfig())
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access. Callers reading
// it concurrently with indexing must do their own coordination; the
// QueryBuilder does it for them.
func (e *Engine) Store() *Store {
	return e.store
}

// SetConfig replaces the engine configuration. Affects subsequent
// indexing and resolution passes; existing bindings are untouched until
// their files re-resolve.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.languages = nil
	if len(cfg.Languages) > 0 {
		e.languages = make(map[string]bool, len(cfg.Languages))
		for _, l := range cfg.Languages {
			e.languages[l] = true
		}
	}
	e.resolver.SetConfig(cfg.resolverConfig())
}

// Query returns a QueryBuilder over the graph. Its reads take the
// engine's read lock, so they are safe against a concurrent writer.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store, mu: &e.mu}
}

// CheckIntegrity runs the graph's referential integrity checks.
func (e *Engine) CheckIntegrity() ([]*IntegrityError, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.CheckIntegrity()
}

// symbolKey identifies a symbol across reindexes of its file by
// (name, kind, parent index position).
type symbolKey struct {
	Name       string
	Kind       string
	ParentName string // enclosing symbol name; "" for top level
}

// capturedSymbol holds a symbol's identity and signature hash for blast
// radius comparison.
type capturedSymbol struct {
	ID            int64
	Key           symbolKey
	SignatureHash string
}

// captureSymbols snapshots a file's symbols with their signature hashes.
func (e *Engine) captureSymbols(fileID int64) ([]capturedSymbol, error) {
	syms, err := e.store.SymbolsByFile(fileID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*store.Symbol, len(syms))
	for _, sym := range syms {
		byID[sym.ID] = sym
	}

	var captured []capturedSymbol
	for _, sym := range syms {
		var parentName string
		if sym.ParentSymbolID != nil {
			if p, ok := byID[*sym.ParentSymbolID]; ok {
				parentName = p.Name
			}
		}
		captured = append(captured, capturedSymbol{
			ID:            sym.ID,
			Key:           symbolKey{Name: sym.Name, Kind: sym.Kind, ParentName: parentName},
			SignatureHash: store.ComputeSignatureHash(sym.Name, sym.Kind, sym.TypeExpr, sym.Exported),
		})
	}
	return captured, nil
}

// IndexFiles indexes the given file paths. Unsupported and unchanged
// files are skipped. Per-file failures are collected; the rest of the
// batch still indexes.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indexFilesLocked(ctx, paths)
}

func (e *Engine) indexFilesLocked(ctx context.Context, paths []string) error {
	if e.cfg.parallel() {
		return e.indexFilesParallel(ctx, paths)
	}
	return e.indexFilesSerial(ctx, paths)
}

func (e *Engine) indexFilesSerial(ctx context.Context, paths []string) error {
	// Initialize blast radius so Resolve can distinguish "no changes"
	// (non-nil empty map) from "first run" (nil).
	if e.blastRadius == nil {
		e.blastRadius = make(map[int64]bool)
	}
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.indexFile(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

func (e *Engine) indexFile(ctx context.Context, path string) error {
	ext, ok := e.registry.ForFile(path)
	if !ok {
		return nil // unsupported extension
	}
	if e.languages != nil && !e.languages[ext.Language()] {
		return nil // filtered out
	}

	content, err := e.repo.Read(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(content))

	existing, err := e.store.FileByPath(path)
	if err != nil {
		return fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash {
		return nil // unchanged
	}

	g, err := e.extract(ctx, ext, path, content)
	if err != nil {
		return err
	}
	return e.commitGraph(path, ext.Language(), content, hash, existing, g)
}

// extract parses and walks one file, producing its graph rows.
func (e *Engine) extract(ctx context.Context, ext lang.Extractor, path string, content []byte) (*lang.FileGraph, error) {
	tree, err := syntax.Parse(ctx, ext.Language(), content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	g, err := ext.Extract(tree, path)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return g, nil
}

// commitGraph replaces a file's graph data and folds the change into the
// accumulated blast radius. A previously indexed file keeps its rowid:
// other files indexed in the same batch may already hold it in the blast
// radius. Must run under the write lock; the parallel pipeline calls it
// from its single commit goroutine.
func (e *Engine) commitGraph(path, language string, content []byte, hash string, existing *store.File, g *lang.FileGraph) error {
	// Capture old symbols before deletion, for blast radius.
	var oldSymbols []capturedSymbol
	fileRow := &store.File{
		Path:        path,
		Language:    language,
		Module:      g.Module,
		Hash:        hash,
		LineCount:   bytes.Count(content, []byte{'\n'}) + 1,
		LastIndexed: time.Now(),
	}
	var fileID int64
	if existing != nil {
		var err error
		oldSymbols, err = e.captureSymbols(existing.ID)
		if err != nil {
			return fmt.Errorf("capture old symbols: %w", err)
		}
		if err := e.store.DeleteFileData(existing.ID); err != nil {
			return fmt.Errorf("delete old data: %w", err)
		}
		fileRow.ID = existing.ID
		if err := e.store.UpdateFile(fileRow); err != nil {
			return fmt.Errorf("update file record: %w", err)
		}
		fileID = existing.ID
	} else {
		var err error
		fileID, err = e.store.InsertFile(fileRow)
		if err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
	}

	if _, err := e.store.InsertGraph(fileID, toGraphRows(g)); err != nil {
		return fmt.Errorf("insert graph: %w", err)
	}

	newSymbols, err := e.captureSymbols(fileID)
	if err != nil {
		return fmt.Errorf("capture new symbols: %w", err)
	}
	e.generation++

	if e.blastRadius == nil {
		e.blastRadius = make(map[int64]bool)
	}
	for _, fid := range e.computeBlastRadius(fileID, g.Module, oldSymbols, newSymbols) {
		e.blastRadius[fid] = true
	}
	return nil
}

// RemoveFile drops a file from the graph. Files that referenced its
// symbols join the blast radius and re-resolve on the next Resolve.
func (e *Engine) RemoveFile(ctx context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeFileLocked(path)
}

func (e *Engine) removeFileLocked(path string) error {
	existing, err := e.store.FileByPath(path)
	if err != nil {
		return fmt.Errorf("lookup file: %w", err)
	}
	if existing == nil {
		return nil
	}
	old, err := e.captureSymbols(existing.ID)
	if err != nil {
		return fmt.Errorf("capture old symbols: %w", err)
	}
	if e.blastRadius == nil {
		e.blastRadius = make(map[int64]bool)
	}
	var removedIDs []int64
	for _, s := range old {
		removedIDs = append(removedIDs, s.ID)
	}
	if len(removedIDs) > 0 {
		fileIDs, err := e.store.FilesReferencingSymbols(removedIDs)
		if err != nil {
			return fmt.Errorf("files referencing: %w", err)
		}
		for _, fid := range fileIDs {
			e.blastRadius[fid] = true
		}
		if err := e.store.DeleteResolutionDataForSymbols(removedIDs); err != nil {
			return fmt.Errorf("delete resolution data: %w", err)
		}
	}
	if err := e.store.DeleteFileData(existing.ID); err != nil {
		return fmt.Errorf("delete file data: %w", err)
	}
	if err := e.store.DeleteFile(existing.ID); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	delete(e.blastRadius, existing.ID)
	e.generation++
	return nil
}

// computeBlastRadius compares old and new symbols of a changed file and
// returns the file IDs whose resolution data is now suspect.
func (e *Engine) computeBlastRadius(fileID int64, module string, oldSyms, newSyms []capturedSymbol) []int64 {
	// The changed file always re-resolves.
	result := map[int64]bool{fileID: true}

	oldByKey := make(map[symbolKey]capturedSymbol, len(oldSyms))
	for _, s := range oldSyms {
		oldByKey[s.Key] = s
	}
	newByKey := make(map[symbolKey]capturedSymbol, len(newSyms))
	for _, s := range newSyms {
		newByKey[s.Key] = s
	}

	var removedIDs, changedOldIDs []int64
	exportsShifted := false

	for key, oldSym := range oldByKey {
		newSym, ok := newByKey[key]
		switch {
		case !ok:
			removedIDs = append(removedIDs, oldSym.ID)
			exportsShifted = true
		case oldSym.SignatureHash != newSym.SignatureHash:
			changedOldIDs = append(changedOldIDs, oldSym.ID)
		}
	}
	for key := range newByKey {
		if _, ok := oldByKey[key]; !ok {
			exportsShifted = true
		}
	}

	// Files holding references bound to removed or re-signatured symbols.
	affectedIDs := append(removedIDs, changedOldIDs...)
	if len(affectedIDs) > 0 {
		if fileIDs, err := e.store.FilesReferencingSymbols(affectedIDs); err == nil {
			for _, fid := range fileIDs {
				result[fid] = true
			}
		}
	}

	// Added or removed symbols can change what an import of this module
	// binds to, so every importer re-resolves.
	if exportsShifted && module != "" {
		if fileIDs, err := e.store.FilesImportingModule(module); err == nil {
			for _, fid := range fileIDs {
				result[fid] = true
			}
		}
	}

	// Bindings to symbols that no longer exist must not survive.
	if len(removedIDs) > 0 {
		_ = e.store.DeleteResolutionDataForSymbols(removedIDs)
	}

	fileIDs := make([]int64, 0, len(result))
	for fid := range result {
		fileIDs = append(fileIDs, fid)
	}
	return fileIDs
}

// IndexDirectory discovers files under root through the Repository and
// indexes the ones with supported extensions.
func (e *Engine) IndexDirectory(ctx context.Context, root string) error {
	all, err := e.repo.ListFiles(root)
	if err != nil {
		return fmt.Errorf("graft: list files: %w", err)
	}
	var paths []string
	for _, p := range all {
		if _, ok := syntax.LanguageForFile(p); ok {
			paths = append(paths, p)
		}
	}
	return e.IndexFiles(ctx, paths)
}

// Resolve binds reference candidates accumulated since the last pass.
// After a first index (or a full reindex) every file resolves; after an
// incremental index only the blast radius plus the standing
// unresolved-reference backlog do. The resulting graph is identical
// either way.
func (e *Engine) Resolve(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveLocked(ctx)
}

func (e *Engine) resolveLocked(ctx context.Context) error {
	defer func() { e.blastRadius = nil }()

	// Non-nil empty blast radius means nothing changed.
	if e.blastRadius != nil && len(e.blastRadius) == 0 {
		return nil
	}

	var fileIDs []int64
	if e.blastRadius != nil {
		for fid := range e.blastRadius {
			fileIDs = append(fileIDs, fid)
		}
		// Files with standing unresolved references get another chance:
		// the change may have introduced what they were missing.
		backlog, err := e.store.FilesWithUnresolvedRefs()
		if err != nil {
			return fmt.Errorf("graft: unresolved backlog: %w", err)
		}
		seen := make(map[int64]bool, len(fileIDs))
		for _, fid := range fileIDs {
			seen[fid] = true
		}
		for _, fid := range backlog {
			if !seen[fid] {
				fileIDs = append(fileIDs, fid)
			}
		}
	} else {
		files, err := e.store.AllFiles()
		if err != nil {
			return fmt.Errorf("graft: list files: %w", err)
		}
		for _, f := range files {
			fileIDs = append(fileIDs, f.ID)
		}
	}

	if len(fileIDs) > 0 {
		if err := e.store.DeleteResolutionDataForFiles(fileIDs); err != nil {
			return fmt.Errorf("graft: delete resolution data: %w", err)
		}
	}
	if err := e.resolver.ResolveFiles(ctx, fileIDs); err != nil {
		return fmt.Errorf("graft: %w", err)
	}
	return nil
}

// toGraphRows converts an extractor's index-linked output into the
// store's row form.
func toGraphRows(g *lang.FileGraph) *store.GraphRows {
	rows := &store.GraphRows{
		Scopes:    make([]store.ScopeRow, len(g.Scopes)),
		Symbols:   make([]store.SymbolRow, len(g.Symbols)),
		Refs:      make([]store.RefRow, len(g.Refs)),
		Imports:   make([]store.ImportRow, len(g.Imports)),
		Reexports: make([]store.ReexportRow, len(g.Reexports)),
	}
	for i, sc := range g.Scopes {
		rows.Scopes[i] = store.ScopeRow{
			Kind:        sc.Kind,
			ParentIndex: sc.Parent,
			StartByte:   int64(sc.Span.Start),
			EndByte:     int64(sc.Span.End),
		}
	}
	for i, sym := range g.Symbols {
		rows.Symbols[i] = store.SymbolRow{
			Name:        sym.Name,
			Kind:        sym.Kind,
			TypeExpr:    sym.TypeExpr,
			Exported:    sym.Exported,
			ScopeIndex:  sym.Scope,
			ParentIndex: sym.Parent,
			StartByte:   int64(sym.Span.Start),
			EndByte:     int64(sym.Span.End),
			NameStart:   int64(sym.NameSpan.Start),
			NameEnd:     int64(sym.NameSpan.End),
			StartLine:   int(sym.Span.Line),
			StartCol:    int(sym.Span.Col),
		}
	}
	for i, ref := range g.Refs {
		rows.Refs[i] = store.RefRow{
			Name:           ref.Name,
			Qualifier:      ref.Qualifier,
			Context:        ref.Context,
			ScopeIndex:     ref.Scope,
			EnclosingIndex: ref.Enclosing,
			StartByte:      int64(ref.Span.Start),
			EndByte:        int64(ref.Span.End),
			StartLine:      int(ref.Span.Line),
			StartCol:       int(ref.Span.Col),
		}
	}
	for i, imp := range g.Imports {
		rows.Imports[i] = store.ImportRow{
			Source:       imp.Source,
			ImportedName: imp.ImportedName,
			LocalAlias:   imp.LocalAlias,
			Kind:         imp.Kind,
			StartByte:    int64(imp.Span.Start),
			EndByte:      int64(imp.Span.End),
			NameStart:    int64(imp.NameSpan.Start),
			NameEnd:      int64(imp.NameSpan.End),
		}
	}
	for i, re := range g.Reexports {
		rows.Reexports[i] = store.ReexportRow{
			Source:       re.Source,
			ExportedName: re.Name,
			StartByte:    int64(re.Span.Start),
			EndByte:      int64(re.Span.End),
		}
	}
	return rows
}
