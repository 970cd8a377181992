package service

import (
	"context"

	"github.com/alexanderramin/branchplan/internal/app"
	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/importer"
	"github.com/alexanderramin/branchplan/internal/repository"
)

type ProjectService interface {
	Create(ctx context.Context, p *domain.Project) error
	// CreateWithRoot creates the project and its root scenario atomically.
	CreateWithRoot(ctx context.Context, p *domain.Project, root app.RootMetadata) (*domain.ScenarioNode, error)
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	// Find accepts either a project id or a short id.
	Find(ctx context.Context, ref string) (*domain.Project, error)
	List(ctx context.Context) ([]*domain.Project, error)
}

type ScenarioService interface {
	app.ScenarioTreeUseCase
	app.ResolveScenarioUseCase
	app.CreateBranchUseCase
	app.UpsertDeltaUseCase
	app.TransitionStatusUseCase
	app.DeleteScenarioUseCase

	CreateRoot(ctx context.Context, projectID string, meta app.RootMetadata) (*domain.ScenarioNode, error)
	GetNode(ctx context.Context, nodeID string) (*domain.ScenarioNode, error)
	ListNotifications(ctx context.Context, projectID string, filter repository.NotificationFilter) ([]*domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// ImportResult summarizes an imported scenario tree.
type ImportResult struct {
	Project       *domain.Project
	ScenarioCount int
	DeltaCount    int
}

type ImportService interface {
	ImportProject(ctx context.Context, filePath string) (*ImportResult, error)
	ImportProjectFromSchema(ctx context.Context, schema *importer.ImportSchema) (*ImportResult, error)
	// ExportProject writes a project's tree in the import format.
	ExportProject(ctx context.Context, projectID string) (*importer.ImportSchema, error)
}
