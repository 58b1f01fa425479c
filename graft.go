package graft

import "github.com/jward/graft/internal/store"

// Public type aliases for internal store types used in the QueryBuilder
// and Tx APIs. These are Go type aliases (=), identical to the internal
// types at compile time; external consumers use these names and no
// conversion is needed.

type Store = store.Store
type File = store.File
type Scope = store.Scope
type Symbol = store.Symbol
type Ref = store.Ref
type Import = store.Import
type Reexport = store.Reexport
type ResolvedRef = store.ResolvedRef
type ImportBinding = store.ImportBinding
type CallEdge = store.CallEdge
type InheritEdge = store.InheritEdge
type IntegrityError = store.IntegrityError
