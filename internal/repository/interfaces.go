package repository

import (
	"context"
	"time"

	"github.com/alexanderramin/branchplan/internal/domain"
)

type ProjectRepo interface {
	Create(ctx context.Context, p *domain.Project) error
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	GetByShortID(ctx context.Context, shortID string) (*domain.Project, error)
	List(ctx context.Context) ([]*domain.Project, error)
	// SetActiveScenario moves the active pointer only if the project's
	// active_version still equals expectedVersion.
	SetActiveScenario(ctx context.Context, projectID string, nodeID *string, expectedVersion int) error
	BumpRevision(ctx context.Context, projectID string) (int, error)
}

type ScenarioNodeRepo interface {
	Create(ctx context.Context, n *domain.ScenarioNode) error
	GetByID(ctx context.Context, id string) (*domain.ScenarioNode, error)
	GetRoot(ctx context.Context, projectID string) (*domain.ScenarioNode, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.ScenarioNode, error)
	ListChain(ctx context.Context, nodeID string, maxHops int) ([]*domain.ScenarioNode, error)
	ListChildren(ctx context.Context, parentID string) ([]*domain.ScenarioNode, error)
	// UpdateStatus moves a node from one status to another only if it is
	// still in the from status.
	UpdateStatus(ctx context.Context, id string, from, to domain.ScenarioStatus, at time.Time) error
	Touch(ctx context.Context, id string, at time.Time) error
	DeleteLeaf(ctx context.Context, id string) error
}

type ScenarioDeltaRepo interface {
	// Upsert writes the delta only while its node is still editable.
	Upsert(ctx context.Context, d *domain.ScenarioDelta) error
	GetByNodeStep(ctx context.Context, nodeID string, step int) (*domain.ScenarioDelta, error)
	ListByNode(ctx context.Context, nodeID string) ([]*domain.ScenarioDelta, error)
	ListByNodes(ctx context.Context, nodeIDs []string) ([]*domain.ScenarioDelta, error)
}

type NotificationRepo interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByProject(ctx context.Context, projectID string, filter NotificationFilter) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

// NotificationFilter narrows ListByProject. A nil Role returns every
// notification; a set Role returns those addressed to it or to everyone.
type NotificationFilter struct {
	Role       *domain.CreatorRole
	UnreadOnly bool
	Limit      int
}
