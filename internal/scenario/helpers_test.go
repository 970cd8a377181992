package scenario

import (
	"encoding/json"
	"time"

	"github.com/alexanderramin/branchplan/internal/domain"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func rootNode(id string) *domain.ScenarioNode {
	return &domain.ScenarioNode{
		ID:          id,
		ProjectID:   "P",
		Name:        id,
		Status:      domain.ScenarioDraft,
		CreatorRole: domain.RoleClient,
		CreatedAt:   baseTime,
	}
}

func childNode(id string, parent *domain.ScenarioNode, branch int, minutes int) *domain.ScenarioNode {
	pid := parent.ID
	step := branch
	return &domain.ScenarioNode{
		ID:             id,
		ProjectID:      parent.ProjectID,
		ParentNodeID:   &pid,
		Name:           id,
		Status:         domain.ScenarioDraft,
		CreatorRole:    domain.RoleManager,
		BranchedAtStep: &step,
		TreeDepth:      parent.TreeDepth + 1,
		CreatedAt:      baseTime.Add(time.Duration(minutes) * time.Minute),
	}
}

func delta(node *domain.ScenarioNode, step int, config string) *domain.ScenarioDelta {
	return &domain.ScenarioDelta{
		ID:             node.ID + "-d" + string(rune('0'+step)),
		ScenarioNodeID: node.ID,
		StepNumber:     step,
		StepConfig:     json.RawMessage(config),
		ManualData:     json.RawMessage(`{"note":"` + node.ID + `"}`),
		UploadedFiles:  []domain.FileRef{{ID: "f-" + node.ID, Name: "spec.pdf", URL: "s3://bucket/spec.pdf", Type: "application/pdf"}},
	}
}

func strPtr(s string) *string { return &s }
