package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/alexanderramin/branchplan/internal/app"
	"github.com/alexanderramin/branchplan/internal/db"
	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/repository"
	"github.com/alexanderramin/branchplan/internal/testutil"
	"github.com/stretchr/testify/require"
)

// scenarioEnv bundles the repositories of one test database.
type scenarioEnv struct {
	db            *sql.DB
	projects      repository.ProjectRepo
	nodes         repository.ScenarioNodeRepo
	deltas        repository.ScenarioDeltaRepo
	notifications repository.NotificationRepo
	uow           db.UnitOfWork
}

func newScenarioEnv(database *sql.DB) *scenarioEnv {
	return &scenarioEnv{
		db:            database,
		projects:      repository.NewSQLProjectRepo(database),
		nodes:         repository.NewSQLScenarioNodeRepo(database),
		deltas:        repository.NewSQLScenarioDeltaRepo(database),
		notifications: repository.NewSQLNotificationRepo(database),
		uow:           testutil.NewTestUoW(database),
	}
}

func setupScenarioEnv(t *testing.T) *scenarioEnv {
	t.Helper()
	return newScenarioEnv(testutil.NewTestDB(t))
}

func (e *scenarioEnv) service(cfg ScenarioConfig, observers ...UseCaseObserver) ScenarioService {
	return NewScenarioService(e.projects, e.nodes, e.notifications, e.uow, cfg, observers...)
}

// withUoW returns a service that runs its transactions through uow.
func (e *scenarioEnv) withUoW(uow db.UnitOfWork) ScenarioService {
	return NewScenarioService(e.projects, e.nodes, e.notifications, uow, ScenarioConfig{})
}

// newProject creates a project together with its root scenario.
func (e *scenarioEnv) newProject(t *testing.T, name string) (*domain.Project, *domain.ScenarioNode) {
	t.Helper()
	p := testutil.NewTestProject(name)
	root, err := NewProjectService(e.projects, e.uow).CreateWithRoot(context.Background(), p, app.RootMetadata{
		Name:        "Baseline",
		CreatorRole: domain.RoleManager,
		CreatedBy:   "manager-1",
	})
	require.NoError(t, err)
	return p, root
}

func branch(t *testing.T, svc ScenarioService, parent *domain.ScenarioNode, name string, step int) *domain.ScenarioNode {
	t.Helper()
	n, err := svc.CreateBranch(context.Background(), parent.ID, step, app.BranchMetadata{
		Name:        name,
		CreatorRole: domain.RoleSupplier,
		CreatedBy:   "supplier-1",
	})
	require.NoError(t, err)
	return n
}

func setStep(t *testing.T, svc ScenarioService, node *domain.ScenarioNode, step int, config string) {
	t.Helper()
	_, err := svc.UpsertDelta(context.Background(), node.ID, step, app.DeltaPayload{
		StepConfig: json.RawMessage(config),
		ChangedBy:  "tester",
	})
	require.NoError(t, err)
}

func transition(t *testing.T, svc ScenarioService, node *domain.ScenarioNode, to ...domain.ScenarioStatus) *domain.ScenarioNode {
	t.Helper()
	var err error
	for _, s := range to {
		node, err = svc.TransitionStatus(context.Background(), node.ID, s, app.TransitionOptions{Actor: "tester"})
		require.NoError(t, err)
	}
	return node
}

// recordingObserver keeps every event it receives.
type recordingObserver struct {
	events []UseCaseEvent
}

func (o *recordingObserver) ObserveUseCase(_ context.Context, event UseCaseEvent) {
	o.events = append(o.events, event)
}

func (o *recordingObserver) last() UseCaseEvent {
	return o.events[len(o.events)-1]
}
