// Package resolve binds the edge candidates emitted by the graph
// builders to concrete target symbols. Resolution is deterministic and
// idempotent: a fixed graph and configuration always produce the same
// bindings, and re-running over unchanged candidates changes nothing.
//
// Binding order per candidate: lexical scope chain innermost first, then
// the file's import bindings, with import chains followed transitively
// through re-exports under a hop limit. Candidates that cannot be bound
// stay in the graph as queryable unresolved references.
package resolve

import (
	"context"
	"fmt"
	"sort"

	"github.com/jward/graft/internal/store"
)

// FailCycleGuard is recorded on a ref when following its import chain
// exceeded the hop limit.
const FailCycleGuard = "cycle_guard"

// DefaultHopLimit bounds import chain following. Chains this deep are
// almost always cycles.
const DefaultHopLimit = 16

// Config controls resolution behavior. The zero value is usable.
type Config struct {
	// ImportOverrides maps an import source string to the file path it
	// should resolve to, bypassing module-name matching.
	ImportOverrides map[string]string
	// HopLimit bounds transitive import chain following; 0 means
	// DefaultHopLimit.
	HopLimit int
	// TieBreak names the ambiguity policy; see [Policy].
	TieBreak Policy
}

func (c Config) hopLimit() int {
	if c.HopLimit <= 0 {
		return DefaultHopLimit
	}
	return c.HopLimit
}

// Resolver binds candidates against the symbol table.
type Resolver struct {
	store *store.Store
	cfg   Config
}

// New returns a Resolver over the given store.
func New(s *store.Store, cfg Config) *Resolver {
	return &Resolver{store: s, cfg: cfg}
}

// SetConfig replaces the resolver configuration mid-session. The next
// resolution pass uses it; existing bindings are not retroactively
// changed until their files re-resolve.
func (r *Resolver) SetConfig(cfg Config) {
	r.cfg = cfg
}

// ResolveFiles binds every candidate in the given files. A nil slice
// means all files. Resolution data for the files must already have been
// cleared (the engine does this before calling). Cancellation is honored
// between per-file units of work.
func (r *Resolver) ResolveFiles(ctx context.Context, fileIDs []int64) error {
	if fileIDs == nil {
		files, err := r.store.AllFiles()
		if err != nil {
			return fmt.Errorf("resolve: list files: %w", err)
		}
		for _, f := range files {
			fileIDs = append(fileIDs, f.ID)
		}
	}
	sort.Slice(fileIDs, func(i, j int) bool { return fileIDs[i] < fileIDs[j] })

	for _, fid := range fileIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.resolveFile(fid); err != nil {
			return fmt.Errorf("resolve file %d: %w", fid, err)
		}
	}
	return nil
}

// fileContext caches the per-file data one resolution pass needs.
type fileContext struct {
	file    *store.File
	scopes  map[int64]*store.Scope
	imports []*store.Import
}

func (r *Resolver) loadFileContext(fileID int64) (*fileContext, error) {
	f, err := r.store.FileByID(fileID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("file %d not indexed", fileID)
	}
	scopes, err := r.store.ScopesByFile(fileID)
	if err != nil {
		return nil, err
	}
	scopeMap := make(map[int64]*store.Scope, len(scopes))
	for _, sc := range scopes {
		scopeMap[sc.ID] = sc
	}
	imports, err := r.store.ImportsByFile(fileID)
	if err != nil {
		return nil, err
	}
	return &fileContext{file: f, scopes: scopeMap, imports: imports}, nil
}

func (r *Resolver) resolveFile(fileID int64) error {
	fc, err := r.loadFileContext(fileID)
	if err != nil {
		return err
	}
	refs, err := r.store.RefsByFile(fileID)
	if err != nil {
		return err
	}

	// boundImports dedupes import_binding rows within the pass.
	boundImports := make(map[int64]bool)

	for _, ref := range refs {
		outcome, err := r.resolveRef(fc, ref, boundImports)
		if err != nil {
			return err
		}
		if err := r.recordOutcome(ref, outcome); err != nil {
			return err
		}
	}
	return nil
}

// outcome is the tagged result of binding one candidate:
// resolved (one target), ambiguous (several), or unresolved (none,
// with an optional fail reason).
type outcome struct {
	targets    []*store.Symbol
	kind       string // store.ResolveLexical or store.ResolveImport
	failReason string
}

func unresolved() outcome              { return outcome{} }
func cycleGuard() outcome              { return outcome{failReason: FailCycleGuard} }
func resolvedAs(sym *store.Symbol, kind string) outcome {
	return outcome{targets: []*store.Symbol{sym}, kind: kind}
}

func (r *Resolver) resolveRef(fc *fileContext, ref *store.Ref, boundImports map[int64]bool) (outcome, error) {
	if ref.Qualifier != "" {
		return r.resolveQualified(fc, ref, boundImports)
	}

	// Lexical scopes first, innermost outward.
	syms, err := r.lookupLexical(fc, ref.ScopeID, ref.Name, ref.StartByte)
	if err != nil {
		return unresolved(), err
	}
	if len(syms) > 0 {
		return resolvedAs(pick(syms, r.cfg.TieBreak), store.ResolveLexical), nil
	}

	// Then the file's import bindings.
	return r.resolveViaImports(fc, ref, boundImports)
}

func (r *Resolver) recordOutcome(ref *store.Ref, out outcome) error {
	if out.failReason != "" {
		return r.store.SetRefFailReason(ref.ID, out.failReason)
	}
	if len(out.targets) == 0 {
		return nil // retained as unresolved, retried on later passes
	}
	kind := out.kind
	if len(out.targets) > 1 {
		kind = store.ResolveAmbiguous
	}
	for _, target := range out.targets {
		if _, err := r.store.InsertResolvedRef(&store.ResolvedRef{
			RefID:          ref.ID,
			TargetSymbolID: target.ID,
			Kind:           kind,
		}); err != nil {
			return err
		}
		if kind != store.ResolveAmbiguous {
			if err := r.recordDerivedEdge(ref, target); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordDerivedEdge adds the typed edge a bound candidate implies:
// call edges for call sites, inheritance edges for base clauses.
func (r *Resolver) recordDerivedEdge(ref *store.Ref, target *store.Symbol) error {
	switch ref.Context {
	case "call":
		_, err := r.store.InsertCallEdge(&store.CallEdge{
			CallerSymbolID: ref.EnclosingSymbolID,
			CalleeSymbolID: target.ID,
			RefID:          ref.ID,
		})
		return err
	case "base":
		if ref.EnclosingSymbolID == nil {
			return nil
		}
		_, err := r.store.InsertInheritEdge(&store.InheritEdge{
			ClassSymbolID:  *ref.EnclosingSymbolID,
			ParentSymbolID: target.ID,
			RefID:          ref.ID,
		})
		return err
	}
	return nil
}
