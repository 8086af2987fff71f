package database

import (
	"context"
	"database/sql"
	"fmt"
)

// preparedStmt returns a cached prepared statement for sqlText, preparing
// it on first use.
func (dm *DBManager) preparedStmt(ctx context.Context, sqlText string) (*sql.Stmt, error) {
	dm.stmtMu.RLock()
	stmt, ok := dm.stmtCache[sqlText]
	dm.stmtMu.RUnlock()
	if ok {
		return stmt, nil
	}

	dm.stmtMu.Lock()
	defer dm.stmtMu.Unlock()
	if stmt, ok := dm.stmtCache[sqlText]; ok {
		return stmt, nil
	}
	stmt, err := dm.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	dm.stmtCache[sqlText] = stmt
	return stmt, nil
}
