package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memory_dynamics: per-memory scheduling state",
		SQL: `
CREATE TABLE memory_dynamics (
    memory_id          TEXT NOT NULL,
    user_id            TEXT NOT NULL,

    -- FSRS state
    stability          REAL NOT NULL DEFAULT 1.0,
    difficulty         REAL NOT NULL DEFAULT 5.0,

    -- Dual-strength state
    retrieval_strength REAL NOT NULL DEFAULT 1.0,
    storage_strength   REAL NOT NULL DEFAULT 0.5,

    is_key             INTEGER NOT NULL DEFAULT 0,
    importance_weight  REAL NOT NULL DEFAULT 1.0,
    last_accessed_at   INTEGER,
    access_count       INTEGER NOT NULL DEFAULT 0,

    created_at         INTEGER NOT NULL,
    updated_at         INTEGER NOT NULL,

    PRIMARY KEY (memory_id, user_id)
);

CREATE INDEX idx_dynamics_user          ON memory_dynamics(user_id);
CREATE INDEX idx_dynamics_user_accessed ON memory_dynamics(user_id, last_accessed_at);
`,
	},
	{
		Version:     2,
		Description: "memory_access_log: append-only review history",
		SQL: `
CREATE TABLE memory_access_log (
    id                       TEXT PRIMARY KEY,
    memory_id                TEXT NOT NULL,
    user_id                  TEXT NOT NULL,
    grade                    INTEGER NOT NULL,
    signal_type              TEXT,
    retrievability_at_access REAL,
    accessed_at              INTEGER NOT NULL
);

CREATE INDEX idx_access_memory    ON memory_access_log(memory_id);
CREATE INDEX idx_access_user      ON memory_access_log(user_id);
CREATE INDEX idx_access_user_time ON memory_access_log(user_id, accessed_at);
`,
	},
	{
		Version:     3,
		Description: "memory_supersessions: replacement links between memories",
		SQL: `
CREATE TABLE memory_supersessions (
    id            TEXT PRIMARY KEY,
    old_memory_id TEXT NOT NULL,
    new_memory_id TEXT NOT NULL,
    user_id       TEXT NOT NULL,
    reason        TEXT,
    created_at    INTEGER NOT NULL
);

CREATE INDEX idx_supersession_user ON memory_supersessions(user_id);
CREATE INDEX idx_supersession_old  ON memory_supersessions(old_memory_id);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
