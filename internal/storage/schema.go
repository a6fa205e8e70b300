package storage

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createGraphTables(tx); err != nil {
			return err
		}
		if err := createExcerptTables(tx); err != nil {
			return err
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Knowledge base schema initialized", map[string]any{
			"version": currentSchemaVersion,
		})

		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		return nil
	}
	if version == 0 {
		// Opened a database file that was never initialized.
		return db.initializeSchema()
	}

	return fmt.Errorf("unsupported schema version %d", version)
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("DELETE FROM schema_version")
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

func createGraphTables(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			id              TEXT PRIMARY KEY,
			node_type       TEXT NOT NULL,
			project_id      TEXT NOT NULL DEFAULT '',
			name            TEXT NOT NULL,
			confidence      TEXT NOT NULL,
			attributes_json TEXT NOT NULL DEFAULT '{}'
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS edges (
			id         TEXT PRIMARY KEY,
			edge_type  TEXT NOT NULL,
			source     TEXT NOT NULL,
			target     TEXT NOT NULL,
			confidence TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(node_type)",
		"CREATE INDEX IF NOT EXISTS idx_nodes_project ON nodes(project_id)",
		"CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source)",
		"CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target)",
		"CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(edge_type)",
	}
	for _, idx := range indexes {
		if _, err := tx.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}

func createExcerptTables(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS excerpts (
			vector_id  TEXT PRIMARY KEY,
			node_id    TEXT NOT NULL,
			project_id TEXT NOT NULL DEFAULT '',
			confidence TEXT NOT NULL,
			text       TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_excerpts_node ON excerpts(node_id)")
	if err != nil {
		return err
	}

	// FTS index over the excerpt corpus. node_id and project_id ride
	// along so scoped queries stay inside the virtual table.
	_, err = tx.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS excerpt_fts USING fts5(
			node_id,
			project_id,
			text
		)
	`)
	return err
}
