package store

import "time"

// Extraction domain types. IDs are SQLite rowids and are the stable
// symbol identities the rest of the engine passes around.

type File struct {
	ID          int64
	Path        string
	Language    string
	Module      string
	Hash        string
	LineCount   int
	LastIndexed time.Time
}

type Scope struct {
	ID            int64
	FileID        int64
	Kind          string
	ParentScopeID *int64
	StartByte     int64
	EndByte       int64
}

type Symbol struct {
	ID             int64
	FileID         int64
	ScopeID        int64
	Name           string
	Kind           string
	TypeExpr       string
	Exported       bool
	ParentSymbolID *int64
	StartByte      int64
	EndByte        int64
	NameStart      int64
	NameEnd        int64
	StartLine      int
	StartCol       int
}

// Ref is one edge candidate: a syntactic use of a name, bound (or not) by
// the resolver. FailReason records why resolution gave up ("cycle_guard");
// it stays empty for plain unresolved candidates.
type Ref struct {
	ID                int64
	FileID            int64
	ScopeID           int64
	EnclosingSymbolID *int64
	Name              string
	Qualifier         string
	Context           string
	StartByte         int64
	EndByte           int64
	StartLine         int
	StartCol          int
	FailReason        string
}

type Import struct {
	ID           int64
	FileID       int64
	Source       string
	ImportedName string
	LocalAlias   string
	Kind         string // named | namespace | module
	StartByte    int64
	EndByte      int64
	NameStart    int64
	NameEnd      int64
}

type Reexport struct {
	ID           int64
	FileID       int64
	Source       string
	ExportedName string
	StartByte    int64
	EndByte      int64
}

// Resolution domain types.

// Resolution kinds for ResolvedRef.Kind.
const (
	ResolveLexical   = "lexical"
	ResolveImport    = "import"
	ResolveAmbiguous = "ambiguous"
)

type ResolvedRef struct {
	ID             int64
	RefID          int64
	TargetSymbolID int64
	Kind           string
}

// ImportBinding records where an import clause ultimately points after
// chain-following: the target file, plus the target symbol for named imports.
type ImportBinding struct {
	ID             int64
	ImportID       int64
	TargetFileID   int64
	TargetSymbolID *int64
}

type CallEdge struct {
	ID             int64
	CallerSymbolID *int64 // nil for file-level call sites
	CalleeSymbolID int64
	RefID          int64
}

type InheritEdge struct {
	ID             int64
	ClassSymbolID  int64
	ParentSymbolID int64
	RefID          int64
}

// GraphRows is one file's extraction output with index-based links;
// InsertGraph writes it atomically, mapping indexes to rowids.

type ScopeRow struct {
	Kind        string
	ParentIndex int // index into GraphRows.Scopes; -1 for the file scope
	StartByte   int64
	EndByte     int64
}

type SymbolRow struct {
	Name        string
	Kind        string
	TypeExpr    string
	Exported    bool
	ScopeIndex  int
	ParentIndex int // enclosing symbol index; -1 for none
	StartByte   int64
	EndByte     int64
	NameStart   int64
	NameEnd     int64
	StartLine   int
	StartCol    int
}

type RefRow struct {
	Name           string
	Qualifier      string
	Context        string
	ScopeIndex     int
	EnclosingIndex int // enclosing symbol index; -1 for none
	StartByte      int64
	EndByte        int64
	StartLine      int
	StartCol       int
}

type ImportRow struct {
	Source       string
	ImportedName string
	LocalAlias   string
	Kind         string
	StartByte    int64
	EndByte      int64
	NameStart    int64
	NameEnd      int64
}

type ReexportRow struct {
	Source       string
	ExportedName string
	StartByte    int64
	EndByte      int64
}

type GraphRows struct {
	Scopes    []ScopeRow
	Symbols   []SymbolRow
	Refs      []RefRow
	Imports   []ImportRow
	Reexports []ReexportRow
}
