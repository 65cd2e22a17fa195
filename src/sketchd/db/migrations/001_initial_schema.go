package migrations

import (
	"database/sql"
)

func migration001InitialSchema() Migration {
	return Migration{
		Version:     1,
		Description: "Initial schema with sketches and components tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE sketches (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					config TEXT NOT NULL,
					build_dir TEXT,
					sha256 TEXT,
					size INTEGER,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					CHECK ((sha256 IS NULL) = (size IS NULL))
				)
			`)
			if err != nil {
				return err
			}

			// build_dir is allocated once and never shared
			_, err = tx.Exec(`CREATE UNIQUE INDEX idx_sketches_build_dir ON sketches(build_dir) WHERE build_dir IS NOT NULL`)
			if err != nil {
				return err
			}

			_, err = tx.Exec(`CREATE UNIQUE INDEX idx_sketches_fingerprint ON sketches(size, sha256) WHERE sha256 IS NOT NULL`)
			if err != nil {
				return err
			}

			_, err = tx.Exec(`
				CREATE TABLE components (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					category TEXT NOT NULL,
					pretty_name TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					global TEXT NOT NULL DEFAULT '',
					setup TEXT NOT NULL DEFAULT '',
					loop TEXT NOT NULL DEFAULT '',
					period INTEGER NOT NULL DEFAULT 0,
					defaults TEXT NOT NULL DEFAULT '{}',
					testride TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(name, category)
				)
			`)
			if err != nil {
				return err
			}

			_, err = tx.Exec(`CREATE INDEX idx_components_category ON components(category)`)
			return err
		},
	}
}
