package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Supersession links an old memory to the newer one that replaced it.
type Supersession struct {
	ID          string
	OldMemoryID string
	NewMemoryID string
	UserID      string
	Reason      string
	CreatedAt   int64
}

// AddSupersession records that newMemoryID replaced oldMemoryID.
func (db *DB) AddSupersession(oldMemoryID, newMemoryID, userID, reason string) (*Supersession, error) {
	s := &Supersession{
		ID:          uuid.NewString(),
		OldMemoryID: oldMemoryID,
		NewMemoryID: newMemoryID,
		UserID:      userID,
		Reason:      reason,
		CreatedAt:   time.Now().UnixMilli(),
	}
	_, err := db.Exec(`
		INSERT INTO memory_supersessions (id, old_memory_id, new_memory_id, user_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.OldMemoryID, s.NewMemoryID, s.UserID, s.Reason, s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add supersession: %w", err)
	}
	return s, nil
}

// GetSupersessionByOld returns the supersession record for a replaced
// memory, or nil if it was never superseded.
func (db *DB) GetSupersessionByOld(oldMemoryID, userID string) (*Supersession, error) {
	var s Supersession
	var reason sql.NullString
	err := db.QueryRow(`
		SELECT id, old_memory_id, new_memory_id, user_id, reason, created_at
		FROM memory_supersessions
		WHERE old_memory_id = ? AND user_id = ?
	`, oldMemoryID, userID).Scan(&s.ID, &s.OldMemoryID, &s.NewMemoryID, &s.UserID, &reason, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get supersession: %w", err)
	}
	s.Reason = reason.String
	return &s, nil
}

// DeleteSupersession removes a supersession record by id.
func (db *DB) DeleteSupersession(id string) error {
	_, err := db.Exec(`DELETE FROM memory_supersessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete supersession: %w", err)
	}
	return nil
}
