package database

import (
	"context"
	"strings"
	"time"
)

// capFlags records optional libSQL features detected at startup.
type capFlags struct {
	vectorTopK bool
}

// detectCapabilities probes for vector_top_k over the node vector index.
func (dm *DBManager) detectCapabilities(ctx context.Context) {
	// in-memory test databases skip the ANN probe to avoid driver quirks
	if strings.Contains(dm.config.URL, "mode=memory") {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	zero, _ := dm.vectorToString(nil)
	rows, err := dm.db.QueryContext(ctx,
		"SELECT id FROM vector_top_k('idx_node_vectors_embedding', vector32(?), 1) LIMIT 1", zero)
	if rows != nil {
		rows.Close()
	}
	dm.capMu.Lock()
	dm.caps.vectorTopK = err == nil
	dm.capMu.Unlock()
}

func (dm *DBManager) hasVectorTopK() bool {
	dm.capMu.RLock()
	defer dm.capMu.RUnlock()
	return dm.caps.vectorTopK
}

func (dm *DBManager) disableVectorTopK() {
	dm.capMu.Lock()
	dm.caps.vectorTopK = false
	dm.capMu.Unlock()
}
