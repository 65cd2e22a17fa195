package migrations

import (
	"database/sql"
)

func migration002Builds() Migration {
	return Migration{
		Version:     2,
		Description: "Add builds table for compile history",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE builds (
					id TEXT PRIMARY KEY,
					sketch_id TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'running',
					target TEXT NOT NULL DEFAULT '',
					error_stage TEXT NOT NULL DEFAULT '',
					error_message TEXT NOT NULL DEFAULT '',
					sha256 TEXT NOT NULL DEFAULT '',
					size INTEGER NOT NULL DEFAULT 0,
					duplicate_of TEXT NOT NULL DEFAULT '',
					started_at DATETIME NOT NULL,
					completed_at DATETIME,
					duration_ms INTEGER NOT NULL DEFAULT 0,
					FOREIGN KEY (sketch_id) REFERENCES sketches(id) ON DELETE CASCADE
				)
			`)
			if err != nil {
				return err
			}

			_, err = tx.Exec(`CREATE INDEX idx_builds_sketch ON builds(sketch_id, started_at)`)
			return err
		},
	}
}
