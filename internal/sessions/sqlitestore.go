package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the optional durable Backend + LeaseStore behind the
// Session Store's snapshot contract and the Session Gate's distributed
// lease, backed by a CGO-free SQLite driver.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) the sessions database at path
// and ensures its schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessions: open sqlite %s: %w", path, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	snapshot   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_leases (
	session_id TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("sessions: migrate: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save persists sess as a JSON snapshot, implementing Backend.
func (s *SQLiteStore) Save(sessionID string, sess *Session) error {
	blob, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sessions: marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO sessions (session_id, snapshot, updated_at) VALUES (?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		sessionID, string(blob), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sessions: save %s: %w", sessionID, err)
	}
	return nil
}

// Load recovers a previously saved snapshot, implementing Backend.
func (s *SQLiteStore) Load(sessionID string) (*Session, bool, error) {
	row := s.db.QueryRow(`SELECT snapshot FROM sessions WHERE session_id = ?`, sessionID)
	var blob string
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sessions: load %s: %w", sessionID, err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(blob), &sess); err != nil {
		return nil, false, fmt.Errorf("sessions: decode snapshot %s: %w", sessionID, err)
	}
	return &sess, true, nil
}

// TryAcquire implements LeaseStore with the same
// "insert-or-steal-if-expired-or-same-owner" CAS idiom as the
// DBLocker.
func (s *SQLiteStore) TryAcquire(ctx context.Context, sessionID, ownerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UnixMilli()
	expiresAt := time.Now().Add(ttl).UnixMilli()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO session_leases (session_id, owner_id, expires_at) VALUES (?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET owner_id = excluded.owner_id, expires_at = excluded.expires_at
WHERE session_leases.expires_at < ? OR session_leases.owner_id = excluded.owner_id`,
		sessionID, ownerID, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("sessions: try-acquire lease %s: %w", sessionID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sessions: try-acquire rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}
	// The INSERT may have been skipped by the conflict's WHERE clause
	// without updating; confirm current ownership in case this caller
	// already held the lease before the WHERE clause's comparison.
	row := s.db.QueryRowContext(ctx, `SELECT owner_id FROM session_leases WHERE session_id = ?`, sessionID)
	var owner string
	if err := row.Scan(&owner); err != nil {
		return false, nil
	}
	return owner == ownerID, nil
}

// Renew extends an already-held lease's expiry.
func (s *SQLiteStore) Renew(ctx context.Context, sessionID, ownerID string, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx, `
UPDATE session_leases SET expires_at = ? WHERE session_id = ? AND owner_id = ?`,
		expiresAt, sessionID, ownerID)
	if err != nil {
		return fmt.Errorf("sessions: renew lease %s: %w", sessionID, err)
	}
	return nil
}

// Release drops a held lease.
func (s *SQLiteStore) Release(ctx context.Context, sessionID, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_leases WHERE session_id = ? AND owner_id = ?`, sessionID, ownerID)
	if err != nil {
		return fmt.Errorf("sessions: release lease %s: %w", sessionID, err)
	}
	return nil
}

var _ Backend = (*SQLiteStore)(nil)
var _ LeaseStore = (*SQLiteStore)(nil)
