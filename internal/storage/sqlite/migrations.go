package sqlite

import "database/sql"

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    lab_name      TEXT NOT NULL,
    template      TEXT NOT NULL DEFAULT '',
    desired_state TEXT NOT NULL CHECK(desired_state IN ('present','absent')),
    action        TEXT NOT NULL DEFAULT 'none'
                  CHECK(action IN ('none','create','delete','replace')),
    changed       INTEGER NOT NULL DEFAULT 0,
    check_mode    INTEGER NOT NULL DEFAULT 0,
    lab_id        TEXT NOT NULL DEFAULT '',
    error         TEXT NOT NULL DEFAULT '',
    started_at    TEXT NOT NULL,
    finished_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_lab ON runs(lab_name);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

func runMigrations(db *sql.DB) error {
	var current int
	row := db.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&current); err != nil {
		// Table doesn't exist or is empty
		current = 0
	}

	if current >= schemaVersion {
		return nil
	}

	if current < 1 {
		if _, err := db.Exec(schemaV1); err != nil {
			return err
		}
	}

	if _, err := db.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	_, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion)
	return err
}
