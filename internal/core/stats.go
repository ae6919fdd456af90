package core

import (
	"database/sql"
	"fmt"
)

// StatsResult contains aggregate counts for one vault's index
// (SPEC_FULL.md, SUPPLEMENTED FEATURES: vault statistics).
type StatsResult struct {
	NotesTotal    int
	OutlinksTotal int
	OrphanLinks   int
}

// GetStats reads aggregate counts off db: total indexed notes, total
// outlink edges, and outlink targets with no matching note (orphans).
func GetStats(db dbExecer) (StatsResult, error) {
	var r StatsResult
	if err := db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&r.NotesTotal); err != nil {
		return StatsResult{}, fmt.Errorf("stats notes_total: %w", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM outlinks`).Scan(&r.OutlinksTotal); err != nil {
		return StatsResult{}, fmt.Errorf("stats outlinks_total: %w", err)
	}
	if err := db.QueryRow(`
		SELECT COUNT(DISTINCT o.target_path)
		FROM outlinks o
		LEFT JOIN notes n ON n.path = o.target_path
		WHERE n.path IS NULL`).Scan(&r.OrphanLinks); err != nil {
		return StatsResult{}, fmt.Errorf("stats orphan_links: %w", err)
	}
	return r, nil
}

// IndexStats implements the engine's stats query: aggregate counts for one
// vault's index, read under the shared read connection's lock.
func (e *Engine) IndexStats(vaultID string) (StatsResult, error) {
	h, err := e.openVault(vaultID)
	if err != nil {
		return StatsResult{}, err
	}
	var stats StatsResult
	err = h.store.WithReadConn(func(db *sql.DB) error {
		var err error
		stats, err = GetStats(db)
		return err
	})
	return stats, err
}
