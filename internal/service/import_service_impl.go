package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alexanderramin/branchplan/internal/db"
	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/importer"
	"github.com/alexanderramin/branchplan/internal/repository"
)

type importService struct {
	projects repository.ProjectRepo
	uow      db.UnitOfWork
	cfg      ScenarioConfig
	observer UseCaseObserver
}

func NewImportService(projects repository.ProjectRepo, uow db.UnitOfWork, cfg ScenarioConfig, observers ...UseCaseObserver) ImportService {
	return &importService{
		projects: projects,
		uow:      uow,
		cfg:      cfg,
		observer: useCaseObserverOrNoop(observers),
	}
}

func (s *importService) observe(ctx context.Context, name string, startedAt time.Time, fields map[string]any, err error) {
	s.observer.ObserveUseCase(ctx, UseCaseEvent{
		Name:      name,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Success:   err == nil,
		Err:       err,
		Fields:    fields,
	})
}

func (s *importService) ImportProject(ctx context.Context, filePath string) (*ImportResult, error) {
	schema, err := importer.LoadImportSchema(filePath)
	if err != nil {
		return nil, fmt.Errorf("loading import file: %w", err)
	}
	return s.ImportProjectFromSchema(ctx, schema)
}

func (s *importService) ImportProjectFromSchema(ctx context.Context, schema *importer.ImportSchema) (result *ImportResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"project": schema.Project.Name}
	defer func() { s.observe(ctx, "import-project", startedAt, fields, err) }()

	if errs := importer.ValidateImportSchema(schema); len(errs) > 0 {
		return nil, formatValidationErrors(errs)
	}

	tree, err := importer.Convert(schema)
	if err != nil {
		return nil, fmt.Errorf("converting import schema: %w", err)
	}
	if s.cfg.MaxTreeDepth > 0 {
		for _, n := range tree.Nodes {
			if n.TreeDepth > s.cfg.MaxTreeDepth {
				return nil, fmt.Errorf("scenario %q has depth %d beyond limit %d: %w",
					n.Name, n.TreeDepth, s.cfg.MaxTreeDepth, domain.ErrInvalidArgument)
			}
		}
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		if err := r.projects.Create(ctx, tree.Project); err != nil {
			return fmt.Errorf("creating project: %w", err)
		}

		// Nodes start as drafts so their deltas can be written, then move
		// to the status the file asked for.
		for _, n := range tree.Nodes {
			draft := *n
			draft.Status = domain.ScenarioDraft
			draft.FrozenAt, draft.SelectedAt = nil, nil
			if err := r.nodes.Create(ctx, &draft); err != nil {
				return fmt.Errorf("creating scenario %q: %w", n.Name, err)
			}
		}
		for _, d := range tree.Deltas {
			if err := r.deltas.Upsert(ctx, d); err != nil {
				return fmt.Errorf("writing step %d: %w", d.StepNumber, err)
			}
		}
		for _, n := range tree.Nodes {
			if n.Status == domain.ScenarioDraft {
				continue
			}
			if err := r.nodes.UpdateStatus(ctx, n.ID, domain.ScenarioDraft, n.Status, n.UpdatedAt); err != nil {
				return err
			}
		}
		if tree.Selected != nil {
			if err := r.projects.SetActiveScenario(ctx, tree.Project.ID, &tree.Selected.ID, 0); err != nil {
				return err
			}
		}

		root := tree.Nodes[0]
		return recordChange(ctx, r, root, domain.NotifyScenarioCreated, root.CreatedBy, root.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	result = &ImportResult{
		Project:       tree.Project,
		ScenarioCount: len(tree.Nodes),
		DeltaCount:    len(tree.Deltas),
	}
	if tree.Selected != nil {
		id := tree.Selected.ID
		result.Project.ActiveScenarioID = &id
		result.Project.ActiveVersion = 1
	}
	result.Project.Revision = 1
	fields["project_id"] = tree.Project.ID
	fields["scenario_count"] = result.ScenarioCount
	fields["delta_count"] = result.DeltaCount
	return result, nil
}

func (s *importService) ExportProject(ctx context.Context, projectID string) (schema *importer.ImportSchema, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"project_id": projectID}
	defer func() { s.observe(ctx, "export-project", startedAt, fields, err) }()

	if err = requireID("project", projectID); err != nil {
		return nil, err
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		p, err := r.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		nodes, err := r.nodes.ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		// Depth order puts every parent before its children.
		slices.SortStableFunc(nodes, func(a, b *domain.ScenarioNode) int {
			if c := cmp.Compare(a.TreeDepth, b.TreeDepth); c != 0 {
				return c
			}
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		ids := make([]string, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID
		}
		deltas, err := r.deltas.ListByNodes(ctx, ids)
		if err != nil {
			return err
		}
		schema = importer.Export(p, nodes, deltas)
		return nil
	})
	if err != nil {
		return nil, err
	}
	fields["scenario_count"] = len(schema.Scenarios)
	return schema, nil
}

func formatValidationErrors(errs []error) error {
	msg := fmt.Sprintf("import validation failed (%d errors):", len(errs))
	for _, e := range errs {
		msg += "\n  - " + e.Error()
	}
	return fmt.Errorf("%s: %w", msg, domain.ErrInvalidArgument)
}
