package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ts = "2025-01-01T00:00:00.000000000Z"

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedProject(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO projects (id, name, created_at, updated_at) VALUES (?, 'Test', ?, ?)`, id, ts, ts)
	require.NoError(t, err)
}

func insertNode(db *sql.DB, id, projectID string, parent *string, branch *int, depth int, status string) error {
	_, err := db.Exec(`INSERT INTO scenario_nodes
		(id, project_id, parent_node_id, name, creator_role, status, branched_at_step, tree_depth, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'manager', ?, ?, ?, ?, ?)`,
		id, projectID, parent, id, status, branch, depth, ts, ts)
	return err
}

func ptr[T any](v T) *T { return &v }

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	// Run migrations a second time — should succeed without error.
	err := Migrate(db)
	require.NoError(t, err)

	// Third time for good measure.
	err = Migrate(db)
	require.NoError(t, err)
}

func TestMigrate_CreatesAllTables(t *testing.T) {
	db := openTestDB(t)

	expected := []string{"projects", "scenario_nodes", "scenario_deltas", "scenario_notifications"}
	for _, table := range expected {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_CreatesIndexes(t *testing.T) {
	db := openTestDB(t)

	expected := []string{
		"idx_projects_short_id",
		"idx_scenario_nodes_project",
		"idx_scenario_nodes_parent",
		"idx_scenario_nodes_one_root",
		"idx_scenario_nodes_one_selected",
		"idx_scenario_notifications_project",
	}
	for _, idx := range expected {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name=?`, idx).Scan(&name)
		require.NoError(t, err, "index %s should exist", idx)
	}
}

func TestMigrate_ForeignKeysEnabled(t *testing.T) {
	db := openTestDB(t)

	var fk int
	err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk)
	require.NoError(t, err)
	assert.Equal(t, 1, fk, "foreign keys should be enabled")
}

func TestMigrate_WALModeRequested(t *testing.T) {
	// In-memory SQLite uses "memory" journal mode; WAL only applies to file DBs.
	db := openTestDB(t)

	var mode string
	err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "memory", mode)
}

func TestMigrate_ScenarioNodeStatusCheckConstraint(t *testing.T) {
	db := openTestDB(t)
	seedProject(t, db, "p1")

	assert.Error(t, insertNode(db, "r", "p1", nil, nil, 0, "archived"),
		"invalid status should be rejected by CHECK constraint")
	assert.NoError(t, insertNode(db, "r", "p1", nil, nil, 0, "draft"))
}

func TestMigrate_ScenarioNodeShapeConstraint(t *testing.T) {
	db := openTestDB(t)
	seedProject(t, db, "p1")
	require.NoError(t, insertNode(db, "r", "p1", nil, nil, 0, "draft"))

	// A child must carry a branch step and a positive depth.
	assert.Error(t, insertNode(db, "c1", "p1", ptr("r"), nil, 1, "draft"))
	assert.Error(t, insertNode(db, "c2", "p1", ptr("r"), ptr(3), 0, "draft"))
	assert.Error(t, insertNode(db, "c3", "p1", ptr("r"), ptr(8), 1, "draft"))
	assert.NoError(t, insertNode(db, "c4", "p1", ptr("r"), ptr(3), 1, "draft"))
}

func TestMigrate_OneRootPerProject(t *testing.T) {
	db := openTestDB(t)
	seedProject(t, db, "p1")
	seedProject(t, db, "p2")

	require.NoError(t, insertNode(db, "r1", "p1", nil, nil, 0, "draft"))
	assert.Error(t, insertNode(db, "r2", "p1", nil, nil, 0, "draft"), "second root should violate unique index")
	assert.NoError(t, insertNode(db, "r3", "p2", nil, nil, 0, "draft"))
}

func TestMigrate_OneSelectedPerProject(t *testing.T) {
	db := openTestDB(t)
	seedProject(t, db, "p1")
	require.NoError(t, insertNode(db, "r", "p1", nil, nil, 0, "selected"))

	assert.Error(t, insertNode(db, "a", "p1", ptr("r"), ptr(2), 1, "selected"))
	assert.NoError(t, insertNode(db, "b", "p1", ptr("r"), ptr(2), 1, "frozen"))
}

func TestMigrate_ParentMustExist(t *testing.T) {
	db := openTestDB(t)
	seedProject(t, db, "p1")

	assert.Error(t, insertNode(db, "c", "p1", ptr("missing"), ptr(2), 1, "draft"))
}

func TestMigrate_DeltaUniquePerNodeStep(t *testing.T) {
	db := openTestDB(t)
	seedProject(t, db, "p1")
	require.NoError(t, insertNode(db, "r", "p1", nil, nil, 0, "draft"))

	insert := func(id string, step int) error {
		_, err := db.Exec(`INSERT INTO scenario_deltas (id, scenario_node_id, step_number, created_at, updated_at)
			VALUES (?, 'r', ?, ?, ?)`, id, step, ts, ts)
		return err
	}
	require.NoError(t, insert("d1", 1))
	assert.Error(t, insert("d2", 1), "duplicate (node, step) should violate unique constraint")
	assert.Error(t, insert("d3", 0), "step outside 1..7 should violate CHECK constraint")
	assert.NoError(t, insert("d4", 7))
}

func TestMigrate_DeltasCascadeWithNode(t *testing.T) {
	db := openTestDB(t)
	seedProject(t, db, "p1")
	require.NoError(t, insertNode(db, "r", "p1", nil, nil, 0, "draft"))
	require.NoError(t, insertNode(db, "c", "p1", ptr("r"), ptr(1), 1, "draft"))
	_, err := db.Exec(`INSERT INTO scenario_deltas (id, scenario_node_id, step_number, created_at, updated_at)
		VALUES ('d1', 'c', 1, ?, ?)`, ts, ts)
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM scenario_nodes WHERE id = 'c'`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM scenario_deltas`).Scan(&n))
	assert.Equal(t, 0, n)
}
