package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/omegaflow/agentcore/internal/models"
)

// SQLiteBackend is the optional durable Backend for Episodic Memory,
// selected by config (memory backend "sqlite"), alongside the SQLite
// snapshot store that backs the session store.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLiteBackend opens (creating if absent) the episodes database.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open sqlite %s: %w", path, err)
	}
	b := &SQLiteBackend{db: db}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS episodes (
	id TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: migrate: %w", err)
	}
	return b, nil
}

// Close releases the underlying database handle.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Upsert persists ep as a JSON row.
func (b *SQLiteBackend) Upsert(ep models.Episode) error {
	blob, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("memory: marshal episode: %w", err)
	}
	_, err = b.db.Exec(`
INSERT INTO episodes (id, payload) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`, ep.ID, string(blob))
	if err != nil {
		return fmt.Errorf("memory: upsert %s: %w", ep.ID, err)
	}
	return nil
}

// All loads every persisted episode.
func (b *SQLiteBackend) All() ([]models.Episode, error) {
	rows, err := b.db.Query(`SELECT payload FROM episodes`)
	if err != nil {
		return nil, fmt.Errorf("memory: query episodes: %w", err)
	}
	defer rows.Close()

	var out []models.Episode
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("memory: scan episode: %w", err)
		}
		var ep models.Episode
		if err := json.Unmarshal([]byte(blob), &ep); err != nil {
			return nil, fmt.Errorf("memory: decode episode: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

var _ Backend = (*SQLiteBackend)(nil)
