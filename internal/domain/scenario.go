package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Step numbers of the project constructor.
const (
	FirstStep = 1
	LastStep  = 7
	StepCount = LastStep - FirstStep + 1
)

// ValidateStep checks that step lies within FirstStep..LastStep.
func ValidateStep(step int) error {
	if step < FirstStep || step > LastStep {
		return fmt.Errorf("step %d outside %d..%d: %w", step, FirstStep, LastStep, ErrInvalidArgument)
	}
	return nil
}

// ScenarioNode is one variant of a project's step configuration.
type ScenarioNode struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	ParentNodeID   *string        `json:"parent_node_id"` // nil only for the project's root
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	CreatorRole    CreatorRole    `json:"creator_role"`
	Status         ScenarioStatus `json:"status"`
	BranchedAtStep *int           `json:"branched_at_step"` // nil only for the root
	TreeDepth      int            `json:"tree_depth"`       // 0 for root, parent.TreeDepth+1 otherwise
	TreePath       []string       `json:"tree_path"`        // ancestor ids, root first, excluding the node itself
	FrozenAt       *time.Time     `json:"frozen_at,omitempty"`
	SelectedAt     *time.Time     `json:"selected_at,omitempty"`
	CreatedBy      string         `json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (n *ScenarioNode) IsRoot() bool {
	return n.ParentNodeID == nil
}

// IsEditable reports whether deltas may still be written to the node.
// Frozen and selected nodes are history; they stay valid fork points.
func (n *ScenarioNode) IsEditable() bool {
	return n.Status != ScenarioFrozen && n.Status != ScenarioSelected
}

// CoversStep reports whether the node may carry a delta for step. A variant
// cannot rewrite steps before its own branch point.
func (n *ScenarioNode) CoversStep(step int) bool {
	if n.BranchedAtStep == nil {
		return true
	}
	return step >= *n.BranchedAtStep
}

// FileRef is an opaque reference to an uploaded file.
type FileRef struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
	Type string `json:"type" yaml:"type"`
}

// ScenarioDelta is a whole-step override contributed by one node.
// StepConfig and ManualData belong to the step-configuration subsystem and
// are carried as raw JSON.
type ScenarioDelta struct {
	ID             string
	ScenarioNodeID string
	StepNumber     int
	StepConfig     json.RawMessage
	ManualData     json.RawMessage
	UploadedFiles  []FileRef
	ChangedBy      string
	ChangeReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
