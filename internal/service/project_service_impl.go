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
	"github.com/google/uuid"
)

type projectService struct {
	projects repository.ProjectRepo
	uow      db.UnitOfWork
	observer UseCaseObserver
}

func NewProjectService(projects repository.ProjectRepo, uow db.UnitOfWork, observers ...UseCaseObserver) ProjectService {
	return &projectService{projects: projects, uow: uow, observer: useCaseObserverOrNoop(observers)}
}

func (s *projectService) prepare(p *domain.Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project name is required: %w", domain.ErrInvalidArgument)
	}
	if err := p.ValidateShortID(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (s *projectService) Create(ctx context.Context, p *domain.Project) (err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observer.ObserveUseCase(ctx, UseCaseEvent{
			Name:      "create-project",
			StartedAt: startedAt,
			Duration:  time.Since(startedAt),
			Success:   err == nil,
			Err:       err,
			Fields:    map[string]any{"project": p.Name},
		})
	}()

	if err = s.prepare(p); err != nil {
		return err
	}
	return s.projects.Create(ctx, p)
}

func (s *projectService) CreateWithRoot(ctx context.Context, p *domain.Project, root app.RootMetadata) (node *domain.ScenarioNode, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observer.ObserveUseCase(ctx, UseCaseEvent{
			Name:      "create-project",
			StartedAt: startedAt,
			Duration:  time.Since(startedAt),
			Success:   err == nil,
			Err:       err,
			Fields:    map[string]any{"project": p.Name, "with_root": true},
		})
	}()

	if err = s.prepare(p); err != nil {
		return nil, err
	}
	if err = root.Validate(); err != nil {
		return nil, err
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if err := repository.NewSQLProjectRepo(tx).Create(ctx, p); err != nil {
			return err
		}
		var err error
		node, err = insertRoot(ctx, tx, p.ID, root)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.Revision = 1
	return node, nil
}

func (s *projectService) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	return s.projects.GetByID(ctx, id)
}

func (s *projectService) Find(ctx context.Context, ref string) (*domain.Project, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("project reference is required: %w", domain.ErrInvalidArgument)
	}
	p, err := s.projects.GetByID(ctx, ref)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return p, err
	}
	return s.projects.GetByShortID(ctx, ref)
}

func (s *projectService) List(ctx context.Context) ([]*domain.Project, error) {
	return s.projects.List(ctx)
}
