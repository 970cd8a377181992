package app

import (
	"context"

	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/scenario"
)

type ScenarioTreeUseCase interface {
	GetScenarioTree(ctx context.Context, projectID string) (*ScenarioTree, error)
}

type ResolveScenarioUseCase interface {
	ResolveScenario(ctx context.Context, nodeID string) (*scenario.ResolvedScenario, error)
}

type CreateBranchUseCase interface {
	CreateBranch(ctx context.Context, parentNodeID string, branchAtStep int, meta BranchMetadata) (*domain.ScenarioNode, error)
}

type UpsertDeltaUseCase interface {
	UpsertDelta(ctx context.Context, nodeID string, stepNumber int, payload DeltaPayload) (*domain.ScenarioDelta, error)
}

type TransitionStatusUseCase interface {
	TransitionStatus(ctx context.Context, nodeID string, newStatus domain.ScenarioStatus, opts TransitionOptions) (*domain.ScenarioNode, error)
}

type DeleteScenarioUseCase interface {
	DeleteScenario(ctx context.Context, nodeID, actor string) error
}
