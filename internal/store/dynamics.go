package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Dynamics is the persisted scheduling state for one (memory, user) pair.
// Timestamps are unix milliseconds; LastAccessedAt is nil until the first
// review.
type Dynamics struct {
	MemoryID          string
	UserID            string
	Stability         float64
	Difficulty        float64
	RetrievalStrength float64
	StorageStrength   float64
	IsKey             bool
	ImportanceWeight  float64
	LastAccessedAt    *int64
	AccessCount       int
	CreatedAt         int64
	UpdatedAt         int64
}

// LastAccessedTime returns the last access as a time.Time, or nil.
func (d *Dynamics) LastAccessedTime() *time.Time {
	if d.LastAccessedAt == nil {
		return nil
	}
	t := time.UnixMilli(*d.LastAccessedAt)
	return &t
}

const dynamicsColumns = `memory_id, user_id, stability, difficulty, retrieval_strength,
	storage_strength, is_key, importance_weight, last_accessed_at, access_count,
	created_at, updated_at`

func scanDynamics(scan func(dest ...any) error) (*Dynamics, error) {
	var d Dynamics
	var isKey int
	var lastAccessed sql.NullInt64
	err := scan(&d.MemoryID, &d.UserID, &d.Stability, &d.Difficulty, &d.RetrievalStrength,
		&d.StorageStrength, &isKey, &d.ImportanceWeight, &lastAccessed, &d.AccessCount,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.IsKey = isKey != 0
	if lastAccessed.Valid {
		d.LastAccessedAt = &lastAccessed.Int64
	}
	return &d, nil
}

// GetDynamics returns the dynamics record for a memory, or nil if untracked.
func (db *DB) GetDynamics(memoryID, userID string) (*Dynamics, error) {
	row := db.QueryRow(`
		SELECT `+dynamicsColumns+`
		FROM memory_dynamics WHERE memory_id = ? AND user_id = ?
	`, memoryID, userID)

	d, err := scanDynamics(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dynamics: %w", err)
	}
	return d, nil
}

// EnsureDynamics returns the dynamics record for a memory, creating it with
// default state if it does not exist.
func (db *DB) EnsureDynamics(memoryID, userID string, isKey bool) (*Dynamics, error) {
	existing, err := db.GetDynamics(memoryID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UnixMilli()
	key := 0
	if isKey {
		key = 1
	}
	// INSERT OR IGNORE: a concurrent ensure for the same pair is harmless.
	_, err = db.Exec(`
		INSERT OR IGNORE INTO memory_dynamics
			(memory_id, user_id, stability, difficulty, retrieval_strength,
			 storage_strength, is_key, importance_weight, access_count, created_at, updated_at)
		VALUES (?, ?, 1.0, 5.0, 1.0, 0.5, ?, 1.0, 0, ?, ?)
	`, memoryID, userID, key, now, now)
	if err != nil {
		return nil, fmt.Errorf("create dynamics: %w", err)
	}

	return db.GetDynamics(memoryID, userID)
}

// SaveDynamics persists the mutable fields of a dynamics record.
// Last write wins; concurrent promotions of the same memory are not
// coordinated beyond that.
func (db *DB) SaveDynamics(d *Dynamics) error {
	now := time.Now().UnixMilli()
	key := 0
	if d.IsKey {
		key = 1
	}
	var lastAccessed any
	if d.LastAccessedAt != nil {
		lastAccessed = *d.LastAccessedAt
	}

	res, err := db.Exec(`
		UPDATE memory_dynamics
		SET stability = ?, difficulty = ?, retrieval_strength = ?, storage_strength = ?,
			is_key = ?, importance_weight = ?, last_accessed_at = ?, access_count = ?, updated_at = ?
		WHERE memory_id = ? AND user_id = ?
	`, d.Stability, d.Difficulty, d.RetrievalStrength, d.StorageStrength,
		key, d.ImportanceWeight, lastAccessed, d.AccessCount, now,
		d.MemoryID, d.UserID)
	if err != nil {
		return fmt.Errorf("save dynamics: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("save dynamics: no record for %s/%s", d.MemoryID, d.UserID)
	}
	d.UpdatedAt = now
	return nil
}

// GetDynamicsBatch loads dynamics for a set of memory ids in one query and
// returns them keyed by memory id. Missing ids are simply absent from the
// map.
func (db *DB) GetDynamicsBatch(memoryIDs []string, userID string) (map[string]*Dynamics, error) {
	out := make(map[string]*Dynamics, len(memoryIDs))
	if len(memoryIDs) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(memoryIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(memoryIDs)+1)
	for _, id := range memoryIDs {
		args = append(args, id)
	}
	args = append(args, userID)

	rows, err := db.Query(`
		SELECT `+dynamicsColumns+`
		FROM memory_dynamics
		WHERE memory_id IN (`+placeholders+`) AND user_id = ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("batch get dynamics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDynamics(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan dynamics: %w", err)
		}
		out[d.MemoryID] = d
	}
	return out, rows.Err()
}
