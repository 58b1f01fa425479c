// Package graft builds and maintains a resolved, queryable symbol graph
// for a multi-language codebase, and applies reference-consistent
// mutations (rename, move, delete, edit) back to the source text.
//
// # Pipeline
//
// Graft operates in two phases:
//
//  1. Extract: each source file is parsed with tree-sitter and walked by
//     a language-specific graph builder, producing symbols, lexical
//     scopes, reference candidates, imports, and re-exports.
//
//  2. Resolve: reference candidates are bound to concrete target symbols
//     by walking lexical scopes innermost-out, then following the file's
//     imports, transitively through re-export chains. Resolution also
//     derives call graph and inheritance edges. Unbindable candidates
//     stay queryable as unresolved references and are retried whenever
//     new files arrive.
//
// # Usage
//
// Create an Engine, index source files, resolve, and query:
//
//	e, err := graft.New()
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	err = e.IndexDirectory(ctx, "path/to/project")
//	err = e.Resolve(ctx)
//
//	q := e.Query()
//	locs, err := q.DefinitionAt("main.go", 10, 5)
//
// # Mutations
//
// Mutations run in transactions. A [Tx] stages text edits derived from
// the graph; Commit validates them, rewrites the affected files through
// the [Repository], and re-indexes exactly the touched files:
//
//	tx := e.Begin()
//	if err := tx.Rename(symbolID, "NewName"); err != nil { ... }
//	if err := tx.Commit(ctx); err != nil { ... }
//
// A failed or conflicting transaction leaves both the graph and the
// source bytes untouched.
//
// # Incremental Indexing
//
// [Engine.IndexFiles] detects unchanged files via content hashing and
// skips them. When a file changes, graft computes a blast radius (the
// changed file, every file referencing its removed or re-signatured
// symbols, every importer of its module, and the unresolved-reference
// backlog) and re-resolves only those files. The result is always
// identical to a full rebuild.
package graft
