package graft

import "errors"

// Sentinel errors returned by the mutation engine. Callers branch on
// these with errors.Is; the wrapped message carries the specifics.
var (
	// ErrNamingConflict means a rename would collide with a name already
	// visible in a scope that uses the renamed symbol.
	ErrNamingConflict = errors.New("naming conflict")

	// ErrSymbolInUse means a delete targeted a symbol that still has
	// resolved references and force was not set.
	ErrSymbolInUse = errors.New("symbol in use")

	// ErrOverlappingEdits means two staged edits in one transaction
	// touch overlapping byte ranges of the same file.
	ErrOverlappingEdits = errors.New("overlapping edits")

	// ErrStaleTx means the graph changed under an open transaction, so
	// its staged byte offsets can no longer be trusted.
	ErrStaleTx = errors.New("stale transaction")

	// ErrTxClosed means the transaction already committed or rolled back.
	ErrTxClosed = errors.New("transaction closed")

	// ErrSymbolNotFound means an operation named a symbol ID that is not
	// in the graph.
	ErrSymbolNotFound = errors.New("symbol not found")
)
