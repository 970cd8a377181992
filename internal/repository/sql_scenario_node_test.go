package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTree creates a project with root R, children A and B, and A's child C.
func seedTree(t *testing.T, database *sql.DB) (p *domain.Project, r, a, b, c *domain.ScenarioNode) {
	t.Helper()
	ctx := context.Background()
	p = testutil.NewTestProject("Tree")
	require.NoError(t, NewSQLProjectRepo(database).Create(ctx, p))

	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	nodes := NewSQLScenarioNodeRepo(database)
	r = testutil.NewTestRoot(p.ID, "R", testutil.WithCreatedAt(base))
	a = testutil.NewTestBranch(r, "A", 2, testutil.WithCreatedAt(base.Add(time.Minute)))
	b = testutil.NewTestBranch(r, "B", 3, testutil.WithCreatedAt(base.Add(2*time.Minute)))
	c = testutil.NewTestBranch(a, "C", 4, testutil.WithCreatedAt(base.Add(3*time.Minute)))
	for _, n := range []*domain.ScenarioNode{r, a, b, c} {
		require.NoError(t, nodes.Create(ctx, n))
	}
	return p, r, a, b, c
}

func TestScenarioNodeRepo_CreateAndGetByID(t *testing.T) {
	database := testutil.NewTestDB(t)
	repo := NewSQLScenarioNodeRepo(database)
	_, r, _, _, c := seedTree(t, database)
	ctx := context.Background()

	fetched, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "C", fetched.Name)
	require.NotNil(t, fetched.ParentNodeID)
	assert.Equal(t, c.ParentNodeID, fetched.ParentNodeID)
	require.NotNil(t, fetched.BranchedAtStep)
	assert.Equal(t, 4, *fetched.BranchedAtStep)
	assert.Equal(t, 2, fetched.TreeDepth)
	assert.Equal(t, c.TreePath, fetched.TreePath)
	assert.Equal(t, domain.ScenarioDraft, fetched.Status)
	assert.Equal(t, domain.RoleManager, fetched.CreatorRole)

	root, err := repo.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	assert.Nil(t, root.BranchedAtStep)
	assert.Empty(t, root.TreePath)
}

func TestScenarioNodeRepo_GetByID_NotFound(t *testing.T) {
	database := testutil.NewTestDB(t)
	_, err := NewSQLScenarioNodeRepo(database).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScenarioNodeRepo_GetRoot(t *testing.T) {
	database := testutil.NewTestDB(t)
	p, r, _, _, _ := seedTree(t, database)

	root, err := NewSQLScenarioNodeRepo(database).GetRoot(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, root.ID)
}

func TestScenarioNodeRepo_ListByProject_Ordered(t *testing.T) {
	database := testutil.NewTestDB(t)
	p, r, a, b, c := seedTree(t, database)

	nodes, err := NewSQLScenarioNodeRepo(database).ListByProject(context.Background(), p.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{r.ID, a.ID, b.ID, c.ID}, ids)
}

func TestScenarioNodeRepo_ListChain(t *testing.T) {
	database := testutil.NewTestDB(t)
	_, r, a, b, c := seedTree(t, database)
	repo := NewSQLScenarioNodeRepo(database)

	chain, err := repo.ListChain(context.Background(), c.ID, 100)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, n := range chain {
		ids[n.ID] = true
	}
	assert.Equal(t, map[string]bool{c.ID: true, a.ID: true, r.ID: true}, ids)
	assert.False(t, ids[b.ID])

	chain, err = repo.ListChain(context.Background(), "missing", 100)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestScenarioNodeRepo_ListChildren(t *testing.T) {
	database := testutil.NewTestDB(t)
	_, r, a, b, _ := seedTree(t, database)

	kids, err := NewSQLScenarioNodeRepo(database).ListChildren(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, a.ID, kids[0].ID)
	assert.Equal(t, b.ID, kids[1].ID)
}

func TestScenarioNodeRepo_UpdateStatus_Conditional(t *testing.T) {
	database := testutil.NewTestDB(t)
	_, _, a, _, _ := seedTree(t, database)
	repo := NewSQLScenarioNodeRepo(database)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpdateStatus(ctx, a.ID, domain.ScenarioDraft, domain.ScenarioProposed, at))

	// Expected status no longer matches.
	err := repo.UpdateStatus(ctx, a.ID, domain.ScenarioDraft, domain.ScenarioProposed, at)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, repo.UpdateStatus(ctx, a.ID, domain.ScenarioProposed, domain.ScenarioFrozen, at))
	fetched, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScenarioFrozen, fetched.Status)
	require.NotNil(t, fetched.FrozenAt)
	assert.True(t, at.Equal(*fetched.FrozenAt))
	assert.Nil(t, fetched.SelectedAt)

	err = repo.UpdateStatus(ctx, "missing", domain.ScenarioDraft, domain.ScenarioProposed, at)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScenarioNodeRepo_UpdateStatus_OneSelectedPerProject(t *testing.T) {
	database := testutil.NewTestDB(t)
	_, _, a, b, _ := seedTree(t, database)
	repo := NewSQLScenarioNodeRepo(database)
	ctx := context.Background()
	at := time.Now().UTC()

	for _, n := range []*domain.ScenarioNode{a, b} {
		require.NoError(t, repo.UpdateStatus(ctx, n.ID, domain.ScenarioDraft, domain.ScenarioProposed, at))
	}
	require.NoError(t, repo.UpdateStatus(ctx, a.ID, domain.ScenarioProposed, domain.ScenarioSelected, at))
	err := repo.UpdateStatus(ctx, b.ID, domain.ScenarioProposed, domain.ScenarioSelected, at)
	assert.Error(t, err, "partial unique index should reject a second selected node")
}

func TestScenarioNodeRepo_DeleteLeaf(t *testing.T) {
	database := testutil.NewTestDB(t)
	_, _, a, b, c := seedTree(t, database)
	repo := NewSQLScenarioNodeRepo(database)
	ctx := context.Background()

	err := repo.DeleteLeaf(ctx, a.ID)
	assert.ErrorIs(t, err, ErrConflict, "node with children cannot be deleted")

	require.NoError(t, repo.DeleteLeaf(ctx, c.ID))
	require.NoError(t, repo.DeleteLeaf(ctx, b.ID))
	_, err = repo.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.DeleteLeaf(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScenarioNodeRepo_CorruptTreePath(t *testing.T) {
	database := testutil.NewTestDB(t)
	_, _, a, _, _ := seedTree(t, database)
	_, err := database.Exec(`UPDATE scenario_nodes SET tree_path = 'not json' WHERE id = ?`, a.ID)
	require.NoError(t, err)

	_, err = NewSQLScenarioNodeRepo(database).GetByID(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrDataCorruption)
}
