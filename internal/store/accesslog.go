package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AccessLogEntry records one review event. The log is append-only and
// retained for a bounded window; pruning is housekeeping, never required
// for correctness.
type AccessLogEntry struct {
	ID                     string
	MemoryID               string
	UserID                 string
	Grade                  int
	SignalType             string
	RetrievabilityAtAccess float64
	AccessedAt             int64
}

// AddAccessLog appends a review event.
func (db *DB) AddAccessLog(memoryID, userID string, grade int, signalType string, retrievability float64) error {
	_, err := db.Exec(`
		INSERT INTO memory_access_log (id, memory_id, user_id, grade, signal_type, retrievability_at_access, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), memoryID, userID, grade, signalType, retrievability, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("add access log: %w", err)
	}
	return nil
}

// GetAccessLog returns all review events for a memory, oldest first.
func (db *DB) GetAccessLog(memoryID, userID string) ([]AccessLogEntry, error) {
	rows, err := db.Query(`
		SELECT id, memory_id, user_id, grade, signal_type, retrievability_at_access, accessed_at
		FROM memory_access_log
		WHERE memory_id = ? AND user_id = ?
		ORDER BY accessed_at
	`, memoryID, userID)
	if err != nil {
		return nil, fmt.Errorf("get access log: %w", err)
	}
	defer rows.Close()

	var entries []AccessLogEntry
	for rows.Next() {
		var e AccessLogEntry
		var signal sql.NullString
		var retr sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.MemoryID, &e.UserID, &e.Grade, &signal, &retr, &e.AccessedAt); err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		e.SignalType = signal.String
		e.RetrievabilityAtAccess = retr.Float64
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneAccessLog deletes entries older than the cutoff and returns the
// number removed.
func (db *DB) PruneAccessLog(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`
		DELETE FROM memory_access_log WHERE accessed_at < ?
	`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune access log: %w", err)
	}
	return res.RowsAffected()
}
