package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/scenario"
)

// ScenarioTree is the read model returned for a project's scenario forest.
// FlatNodes holds every node of the project as stored, ordered by
// (tree_depth, created_at, id), so parents precede their children.
type ScenarioTree struct {
	ProjectID        string                 `json:"project_id"`
	Roots            []*scenario.TreeNode   `json:"roots"`
	FlatNodes        []*domain.ScenarioNode `json:"flat_nodes"`
	ActiveScenarioID *string                `json:"active_scenario_id"`
	Revision         int                    `json:"revision"`
}

// RootMetadata describes the root scenario of a project.
type RootMetadata struct {
	Name        string
	Description string
	CreatorRole domain.CreatorRole
	CreatedBy   string
}

func (m RootMetadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("scenario name is required: %w", domain.ErrInvalidArgument)
	}
	if !domain.ValidCreatorRoles[m.CreatorRole] {
		return fmt.Errorf("unknown creator role %q: %w", m.CreatorRole, domain.ErrInvalidArgument)
	}
	return nil
}

// BranchMetadata describes a fork. InitialDelta, when set, is written in the
// same transaction as the new node.
type BranchMetadata struct {
	Name         string
	Description  string
	CreatorRole  domain.CreatorRole
	CreatedBy    string
	InitialDelta *InitialDelta
}

// InitialDelta seeds one step of a new branch.
type InitialDelta struct {
	StepNumber int
	Payload    DeltaPayload
}

func (m BranchMetadata) Validate() error {
	root := RootMetadata{Name: m.Name, Description: m.Description, CreatorRole: m.CreatorRole, CreatedBy: m.CreatedBy}
	if err := root.Validate(); err != nil {
		return err
	}
	if m.InitialDelta != nil {
		if err := domain.ValidateStep(m.InitialDelta.StepNumber); err != nil {
			return err
		}
		return m.InitialDelta.Payload.Validate()
	}
	return nil
}

// DeltaPayload is the full replacement content of one step.
type DeltaPayload struct {
	StepConfig    json.RawMessage
	ManualData    json.RawMessage
	UploadedFiles []domain.FileRef
	ChangedBy     string
	ChangeReason  string
}

// Validate rejects payloads that are not well-formed JSON. Absent payloads
// are allowed.
func (p DeltaPayload) Validate() error {
	if len(p.StepConfig) > 0 && !json.Valid(p.StepConfig) {
		return fmt.Errorf("step_config is not valid JSON: %w", domain.ErrInvalidArgument)
	}
	if len(p.ManualData) > 0 && !json.Valid(p.ManualData) {
		return fmt.Errorf("manual_data is not valid JSON: %w", domain.ErrInvalidArgument)
	}
	return nil
}

// TransitionOptions tunes TransitionStatus.
type TransitionOptions struct {
	Actor string
	// ExpectedActiveVersion pins the compare-and-set of a selection to the
	// pointer version the caller last observed. Nil uses the version read
	// when the call starts.
	ExpectedActiveVersion *int
	// FreezeSiblings freezes the proposed siblings of a node being selected.
	FreezeSiblings bool
}
