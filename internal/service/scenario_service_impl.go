package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/branchplan/internal/app"
	"github.com/alexanderramin/branchplan/internal/db"
	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/repository"
	"github.com/alexanderramin/branchplan/internal/scenario"
	"github.com/google/uuid"
)

// ScenarioConfig tunes the scenario service.
type ScenarioConfig struct {
	// MaxTreeDepth caps how deep branches may nest. 0 means unlimited.
	MaxTreeDepth int
	// Cache, when set, memoizes ResolveScenario per project revision.
	Cache ResolveCache
}

type scenarioService struct {
	projects      repository.ProjectRepo
	nodes         repository.ScenarioNodeRepo
	notifications repository.NotificationRepo
	uow           db.UnitOfWork
	cfg           ScenarioConfig
	observer      UseCaseObserver
}

func NewScenarioService(
	projects repository.ProjectRepo,
	nodes repository.ScenarioNodeRepo,
	notifications repository.NotificationRepo,
	uow db.UnitOfWork,
	cfg ScenarioConfig,
	observers ...UseCaseObserver,
) ScenarioService {
	return &scenarioService{
		projects:      projects,
		nodes:         nodes,
		notifications: notifications,
		uow:           uow,
		cfg:           cfg,
		observer:      useCaseObserverOrNoop(observers),
	}
}

// txRepos bundles repositories bound to one transaction.
type txRepos struct {
	projects      *repository.SQLProjectRepo
	nodes         *repository.SQLScenarioNodeRepo
	deltas        *repository.SQLScenarioDeltaRepo
	notifications *repository.SQLNotificationRepo
}

func newTxRepos(tx db.DBTX) txRepos {
	return txRepos{
		projects:      repository.NewSQLProjectRepo(tx),
		nodes:         repository.NewSQLScenarioNodeRepo(tx),
		deltas:        repository.NewSQLScenarioDeltaRepo(tx),
		notifications: repository.NewSQLNotificationRepo(tx),
	}
}

func (s *scenarioService) observe(ctx context.Context, name string, startedAt time.Time, fields map[string]any, err error) {
	s.observer.ObserveUseCase(ctx, UseCaseEvent{
		Name:      name,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Success:   err == nil,
		Err:       err,
		Fields:    fields,
	})
}

func requireID(what, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s id is required: %w", what, domain.ErrInvalidArgument)
	}
	return nil
}

func (s *scenarioService) GetScenarioTree(ctx context.Context, projectID string) (tree *app.ScenarioTree, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"project_id": projectID}
	defer func() { s.observe(ctx, "get-scenario-tree", startedAt, fields, err) }()

	if err = requireID("project", projectID); err != nil {
		return nil, err
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		project, err := r.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		nodes, err := r.nodes.ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		if err := scenario.NewArena(nodes).CheckAcyclic(); err != nil {
			return err
		}
		ids := make([]string, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID
		}
		deltas, err := r.deltas.ListByNodes(ctx, ids)
		if err != nil {
			return err
		}

		roots := scenario.BuildTree(nodes, deltas, project.ActiveScenarioID)
		tree = &app.ScenarioTree{
			ProjectID:        project.ID,
			Roots:            roots,
			FlatNodes:        nodes,
			ActiveScenarioID: project.ActiveScenarioID,
			Revision:         project.Revision,
		}
		fields["node_count"] = len(nodes)
		fields["delta_count"] = len(deltas)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

func (s *scenarioService) ResolveScenario(ctx context.Context, nodeID string) (resolved *scenario.ResolvedScenario, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"node_id": nodeID}
	defer func() { s.observe(ctx, "resolve-scenario", startedAt, fields, err) }()

	if err = requireID("scenario", nodeID); err != nil {
		return nil, err
	}

	var revision int
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		node, err := r.nodes.GetByID(ctx, nodeID)
		if err != nil {
			return err
		}
		project, err := r.projects.GetByID(ctx, node.ProjectID)
		if err != nil {
			return err
		}
		revision = project.Revision

		if s.cfg.Cache != nil {
			cached, ok, cacheErr := s.cfg.Cache.Get(ctx, nodeID, revision)
			if cacheErr != nil {
				fields["cache_error"] = cacheErr.Error()
			}
			if ok {
				resolved = cached
				fields["cache"] = "hit"
				return nil
			}
			fields["cache"] = "miss"
		}

		// One hop more than the stored depth is enough to reach the root of a
		// consistent chain and to expose an inconsistent one.
		chainNodes, err := r.nodes.ListChain(ctx, nodeID, node.TreeDepth+1)
		if err != nil {
			return err
		}
		chain, err := scenario.NewArena(chainNodes).Chain(nodeID)
		if err != nil {
			return err
		}
		ids := make([]string, len(chain))
		for i, n := range chain {
			ids[i] = n.ID
		}
		deltas, err := r.deltas.ListByNodes(ctx, ids)
		if err != nil {
			return err
		}
		resolved, err = scenario.Resolve(chain, deltas)
		if err != nil {
			return err
		}
		fields["chain_length"] = len(chain)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cfg.Cache != nil && fields["cache"] == "miss" {
		if cacheErr := s.cfg.Cache.Set(ctx, nodeID, revision, resolved); cacheErr != nil {
			fields["cache_error"] = cacheErr.Error()
		}
	}
	return resolved, nil
}

func (s *scenarioService) CreateRoot(ctx context.Context, projectID string, meta app.RootMetadata) (node *domain.ScenarioNode, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"project_id": projectID}
	defer func() { s.observe(ctx, "create-root", startedAt, fields, err) }()

	if err = requireID("project", projectID); err != nil {
		return nil, err
	}
	if err = meta.Validate(); err != nil {
		return nil, err
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if _, err := repository.NewSQLProjectRepo(tx).GetByID(ctx, projectID); err != nil {
			return err
		}
		var err error
		node, err = insertRoot(ctx, tx, projectID, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	fields["node_id"] = node.ID
	return node, nil
}

// insertRoot creates the single root scenario of a project inside tx.
func insertRoot(ctx context.Context, tx db.DBTX, projectID string, meta app.RootMetadata) (*domain.ScenarioNode, error) {
	r := newTxRepos(tx)
	if existing, err := r.nodes.GetRoot(ctx, projectID); err == nil {
		return nil, fmt.Errorf("project already has root scenario %s: %w", existing.ID, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	node := &domain.ScenarioNode{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Name:        strings.TrimSpace(meta.Name),
		Description: meta.Description,
		CreatorRole: meta.CreatorRole,
		Status:      domain.ScenarioDraft,
		TreeDepth:   0,
		TreePath:    []string{},
		CreatedBy:   meta.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.nodes.Create(ctx, node); err != nil {
		return nil, err
	}
	if err := recordChange(ctx, r, node, domain.NotifyScenarioCreated, meta.CreatedBy, now); err != nil {
		return nil, err
	}
	return node, nil
}

func (s *scenarioService) CreateBranch(ctx context.Context, parentNodeID string, branchAtStep int, meta app.BranchMetadata) (node *domain.ScenarioNode, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"parent_id": parentNodeID, "branch_at_step": branchAtStep}
	defer func() { s.observe(ctx, "create-branch", startedAt, fields, err) }()

	if err = requireID("parent scenario", parentNodeID); err != nil {
		return nil, err
	}
	if err = domain.ValidateStep(branchAtStep); err != nil {
		return nil, err
	}
	if err = meta.Validate(); err != nil {
		return nil, err
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		parent, err := r.nodes.GetByID(ctx, parentNodeID)
		if err != nil {
			return err
		}
		if err := scenario.CheckBranch(parent, branchAtStep, s.cfg.MaxTreeDepth); err != nil {
			return err
		}

		now := time.Now().UTC()
		step := branchAtStep
		path := make([]string, 0, len(parent.TreePath)+1)
		path = append(append(path, parent.TreePath...), parent.ID)
		node = &domain.ScenarioNode{
			ID:             uuid.New().String(),
			ProjectID:      parent.ProjectID,
			ParentNodeID:   &parent.ID,
			Name:           strings.TrimSpace(meta.Name),
			Description:    meta.Description,
			CreatorRole:    meta.CreatorRole,
			Status:         domain.ScenarioDraft,
			BranchedAtStep: &step,
			TreeDepth:      parent.TreeDepth + 1,
			TreePath:       path,
			CreatedBy:      meta.CreatedBy,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := r.nodes.Create(ctx, node); err != nil {
			return err
		}

		if d := meta.InitialDelta; d != nil {
			if err := scenario.CheckDelta(node, d.StepNumber); err != nil {
				return err
			}
			if err := r.deltas.Upsert(ctx, newDelta(node.ID, d.StepNumber, d.Payload, now)); err != nil {
				return err
			}
			fields["initial_delta_step"] = d.StepNumber
		}
		return recordChange(ctx, r, node, domain.NotifyScenarioCreated, meta.CreatedBy, now)
	})
	if err != nil {
		return nil, err
	}
	fields["node_id"] = node.ID
	fields["tree_depth"] = node.TreeDepth
	return node, nil
}

func newDelta(nodeID string, step int, p app.DeltaPayload, now time.Time) *domain.ScenarioDelta {
	files := p.UploadedFiles
	if files == nil {
		files = []domain.FileRef{}
	}
	return &domain.ScenarioDelta{
		ID:             uuid.New().String(),
		ScenarioNodeID: nodeID,
		StepNumber:     step,
		StepConfig:     p.StepConfig,
		ManualData:     p.ManualData,
		UploadedFiles:  files,
		ChangedBy:      p.ChangedBy,
		ChangeReason:   p.ChangeReason,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *scenarioService) UpsertDelta(ctx context.Context, nodeID string, stepNumber int, payload app.DeltaPayload) (delta *domain.ScenarioDelta, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"node_id": nodeID, "step": stepNumber}
	defer func() { s.observe(ctx, "upsert-delta", startedAt, fields, err) }()

	if err = requireID("scenario", nodeID); err != nil {
		return nil, err
	}
	if err = domain.ValidateStep(stepNumber); err != nil {
		return nil, err
	}
	if err = payload.Validate(); err != nil {
		return nil, err
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		node, err := r.nodes.GetByID(ctx, nodeID)
		if err != nil {
			return err
		}
		if err := scenario.CheckDelta(node, stepNumber); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := r.deltas.Upsert(ctx, newDelta(nodeID, stepNumber, payload, now)); err != nil {
			return err
		}
		if err := r.nodes.Touch(ctx, nodeID, now); err != nil {
			return err
		}
		if err := recordChange(ctx, r, node, domain.NotifyScenarioUpdated, payload.ChangedBy, now); err != nil {
			return err
		}
		delta, err = r.deltas.GetByNodeStep(ctx, nodeID, stepNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	return delta, nil
}

func (s *scenarioService) TransitionStatus(ctx context.Context, nodeID string, newStatus domain.ScenarioStatus, opts app.TransitionOptions) (node *domain.ScenarioNode, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"node_id": nodeID, "to": string(newStatus)}
	defer func() { s.observe(ctx, "transition-status", startedAt, fields, err) }()

	if err = requireID("scenario", nodeID); err != nil {
		return nil, err
	}
	if !domain.ValidScenarioStatuses[newStatus] {
		return nil, fmt.Errorf("unknown scenario status %q: %w", newStatus, domain.ErrInvalidArgument)
	}

	// A selection is a compare-and-set against the pointer version the
	// caller observed; without an explicit one, that is the version seen now.
	var expectedVersion int
	if newStatus == domain.ScenarioSelected {
		if opts.ExpectedActiveVersion != nil {
			expectedVersion = *opts.ExpectedActiveVersion
		} else {
			current, err := s.nodes.GetByID(ctx, nodeID)
			if err != nil {
				return nil, err
			}
			project, err := s.projects.GetByID(ctx, current.ProjectID)
			if err != nil {
				return nil, err
			}
			expectedVersion = project.ActiveVersion
		}
		fields["expected_version"] = expectedVersion
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		current, err := r.nodes.GetByID(ctx, nodeID)
		if err != nil {
			return err
		}
		fields["from"] = string(current.Status)
		if err := scenario.ValidateTransition(current.Status, newStatus); err != nil {
			return err
		}

		now := time.Now().UTC()
		if newStatus == domain.ScenarioSelected {
			if err := s.selectNode(ctx, r, current, expectedVersion, opts.Actor, now); err != nil {
				return err
			}
		}
		if err := r.nodes.UpdateStatus(ctx, current.ID, current.Status, newStatus, now); err != nil {
			return err
		}
		if opts.FreezeSiblings && (newStatus == domain.ScenarioSelected || newStatus == domain.ScenarioFrozen) {
			frozen, err := freezeProposedSiblings(ctx, r, current, opts.Actor, now)
			if err != nil {
				return err
			}
			fields["siblings_frozen"] = frozen
		}
		if err := recordChange(ctx, r, current, scenario.NotificationFor(newStatus), opts.Actor, now); err != nil {
			return err
		}
		node, err = r.nodes.GetByID(ctx, nodeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// selectNode moves the project's active pointer to node and demotes the
// previous holder. The caller promotes node afterwards, so at no point do
// two selected nodes exist.
func (s *scenarioService) selectNode(ctx context.Context, r txRepos, node *domain.ScenarioNode, expectedVersion int, actor string, now time.Time) error {
	project, err := r.projects.GetByID(ctx, node.ProjectID)
	if err != nil {
		return err
	}
	if err := r.projects.SetActiveScenario(ctx, project.ID, &node.ID, expectedVersion); err != nil {
		return err
	}
	if project.ActiveScenarioID == nil || *project.ActiveScenarioID == node.ID {
		return nil
	}

	prev, err := r.nodes.GetByID(ctx, *project.ActiveScenarioID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if prev.Status != domain.ScenarioSelected {
		return nil
	}
	if err := r.nodes.UpdateStatus(ctx, prev.ID, domain.ScenarioSelected, scenario.Displaced, now); err != nil {
		return err
	}
	return r.notifications.Create(ctx, newNotification(prev, scenario.NotificationFor(scenario.Displaced), actor, now))
}

// freezeProposedSiblings freezes every proposed sibling of node and returns
// how many were frozen.
func freezeProposedSiblings(ctx context.Context, r txRepos, node *domain.ScenarioNode, actor string, now time.Time) (int, error) {
	if node.ParentNodeID == nil {
		return 0, nil
	}
	siblings, err := r.nodes.ListChildren(ctx, *node.ParentNodeID)
	if err != nil {
		return 0, err
	}
	frozen := 0
	for _, sib := range siblings {
		if sib.ID == node.ID || sib.Status != domain.ScenarioProposed {
			continue
		}
		if err := r.nodes.UpdateStatus(ctx, sib.ID, domain.ScenarioProposed, domain.ScenarioFrozen, now); err != nil {
			return frozen, err
		}
		if err := r.notifications.Create(ctx, newNotification(sib, domain.NotifyScenarioFrozen, actor, now)); err != nil {
			return frozen, err
		}
		frozen++
	}
	return frozen, nil
}

func (s *scenarioService) DeleteScenario(ctx context.Context, nodeID, actor string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"node_id": nodeID}
	defer func() { s.observe(ctx, "delete-scenario", startedAt, fields, err) }()

	if err = requireID("scenario", nodeID); err != nil {
		return err
	}

	return s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		node, err := r.nodes.GetByID(ctx, nodeID)
		if err != nil {
			return err
		}
		if node.IsRoot() {
			return fmt.Errorf("root scenario %s cannot be deleted: %w", nodeID, domain.ErrConflict)
		}
		project, err := r.projects.GetByID(ctx, node.ProjectID)
		if err != nil {
			return err
		}
		if node.Status == domain.ScenarioSelected || project.IsActiveScenario(node.ID) {
			return fmt.Errorf("active scenario %s cannot be deleted: %w", nodeID, domain.ErrConflict)
		}
		if err := r.nodes.DeleteLeaf(ctx, nodeID); err != nil {
			return err
		}
		return recordChange(ctx, r, node, domain.NotifyScenarioDeleted, actor, time.Now().UTC())
	})
}

func (s *scenarioService) GetNode(ctx context.Context, nodeID string) (*domain.ScenarioNode, error) {
	if err := requireID("scenario", nodeID); err != nil {
		return nil, err
	}
	return s.nodes.GetByID(ctx, nodeID)
}

func (s *scenarioService) ListNotifications(ctx context.Context, projectID string, filter repository.NotificationFilter) ([]*domain.Notification, error) {
	if err := requireID("project", projectID); err != nil {
		return nil, err
	}
	if filter.Role != nil && !domain.ValidCreatorRoles[*filter.Role] {
		return nil, fmt.Errorf("unknown creator role %q: %w", *filter.Role, domain.ErrInvalidArgument)
	}
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.notifications.ListByProject(ctx, projectID, filter)
}

func (s *scenarioService) MarkNotificationRead(ctx context.Context, id string) error {
	if err := requireID("notification", id); err != nil {
		return err
	}
	return s.notifications.MarkRead(ctx, id)
}

// recordChange bumps the project revision and writes the outbox entry for a
// mutation of node.
func recordChange(ctx context.Context, r txRepos, node *domain.ScenarioNode, typ domain.NotificationType, actor string, now time.Time) error {
	if _, err := r.projects.BumpRevision(ctx, node.ProjectID); err != nil {
		return err
	}
	return r.notifications.Create(ctx, newNotification(node, typ, actor, now))
}

// newNotification addresses proposals to the client, who decides on them;
// every other event goes to all roles.
func newNotification(node *domain.ScenarioNode, typ domain.NotificationType, actor string, now time.Time) *domain.Notification {
	nodeID := node.ID
	n := &domain.Notification{
		ID:             uuid.New().String(),
		ProjectID:      node.ProjectID,
		ScenarioNodeID: &nodeID,
		Type:           typ,
		Actor:          actor,
		CreatedAt:      now,
	}
	if typ == domain.NotifyScenarioProposed {
		client := domain.RoleClient
		n.RecipientRole = &client
	}
	return n
}
