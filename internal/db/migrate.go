package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migrate runs all schema migrations. Statements are idempotent and
// portable between SQLite and PostgreSQL.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			// Tolerate "duplicate column name" errors from ALTER TABLE
			// since the migration system re-runs all statements.
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate column name") ||
		(strings.Contains(msg, "column") && strings.Contains(msg, "already exists"))
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id                  TEXT PRIMARY KEY,
		short_id            TEXT NOT NULL DEFAULT '',
		name                TEXT NOT NULL,
		active_scenario_id  TEXT,
		active_version      INTEGER NOT NULL DEFAULT 0,
		revision            INTEGER NOT NULL DEFAULT 0,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_short_id
		ON projects(short_id) WHERE short_id <> ''`,

	`CREATE TABLE IF NOT EXISTS scenario_nodes (
		id                TEXT PRIMARY KEY,
		project_id        TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		parent_node_id    TEXT REFERENCES scenario_nodes(id),
		name              TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		creator_role      TEXT NOT NULL
		                  CHECK(creator_role IN ('client','manager','supplier')),
		status            TEXT NOT NULL DEFAULT 'draft'
		                  CHECK(status IN ('draft','proposed','frozen','selected')),
		branched_at_step  INTEGER
		                  CHECK(branched_at_step IS NULL OR branched_at_step BETWEEN 1 AND 7),
		tree_depth        INTEGER NOT NULL DEFAULT 0 CHECK(tree_depth >= 0),
		tree_path         TEXT NOT NULL DEFAULT '[]',
		frozen_at         TEXT,
		selected_at       TEXT,
		created_by        TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		CHECK((parent_node_id IS NULL AND branched_at_step IS NULL AND tree_depth = 0)
		   OR (parent_node_id IS NOT NULL AND branched_at_step IS NOT NULL AND tree_depth > 0))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scenario_nodes_project
		ON scenario_nodes(project_id, tree_depth, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_scenario_nodes_parent
		ON scenario_nodes(parent_node_id)`,
	// One root per project.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_scenario_nodes_one_root
		ON scenario_nodes(project_id) WHERE parent_node_id IS NULL`,
	// At most one selected node per project.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_scenario_nodes_one_selected
		ON scenario_nodes(project_id) WHERE status = 'selected'`,

	`CREATE TABLE IF NOT EXISTS scenario_deltas (
		id                TEXT PRIMARY KEY,
		scenario_node_id  TEXT NOT NULL REFERENCES scenario_nodes(id) ON DELETE CASCADE,
		step_number       INTEGER NOT NULL CHECK(step_number BETWEEN 1 AND 7),
		step_config       TEXT,
		manual_data       TEXT,
		uploaded_files    TEXT NOT NULL DEFAULT '[]',
		changed_by        TEXT NOT NULL DEFAULT '',
		change_reason     TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		UNIQUE(scenario_node_id, step_number)
	)`,

	`CREATE TABLE IF NOT EXISTS scenario_notifications (
		id                TEXT PRIMARY KEY,
		project_id        TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		scenario_node_id  TEXT,
		type              TEXT NOT NULL
		                  CHECK(type IN ('scenario_created','scenario_updated','scenario_proposed','scenario_frozen','scenario_selected','scenario_deleted')),
		recipient_role    TEXT
		                  CHECK(recipient_role IS NULL OR recipient_role IN ('client','manager','supplier')),
		actor             TEXT NOT NULL DEFAULT '',
		is_read           INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scenario_notifications_project
		ON scenario_notifications(project_id, created_at)`,
}
