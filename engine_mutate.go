package graft

import "context"

// Rename renames a symbol and every bound reference in one transaction.
func (e *Engine) Rename(ctx context.Context, symbolID int64, newName string) error {
	tx := e.Begin()
	if err := tx.Rename(symbolID, newName); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit(ctx)
}

// MoveSymbol moves a symbol's declaration to another file in one
// transaction, repairing imports in every file that uses it.
func (e *Engine) MoveSymbol(ctx context.Context, symbolID int64, targetPath string) error {
	tx := e.Begin()
	if err := tx.MoveToFile(symbolID, targetPath); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit(ctx)
}

// DeleteSymbol removes a symbol's declaration in one transaction. See
// [Tx.Delete] for the force semantics.
func (e *Engine) DeleteSymbol(ctx context.Context, symbolID int64, force bool) error {
	tx := e.Begin()
	if err := tx.Delete(symbolID, force); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit(ctx)
}
