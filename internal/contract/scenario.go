package contract

import (
	"encoding/json"
	"time"

	"github.com/alexanderramin/branchplan/internal/app"
	"github.com/alexanderramin/branchplan/internal/domain"
)

// StepRequest is the wire form of a whole-step replacement.
type StepRequest struct {
	StepConfig    json.RawMessage  `json:"step_config,omitempty"`
	ManualData    json.RawMessage  `json:"manual_data,omitempty"`
	UploadedFiles []domain.FileRef `json:"uploaded_files,omitempty"`
	ChangedBy     string           `json:"changed_by"`
	ChangeReason  string           `json:"change_reason,omitempty"`
}

func (r StepRequest) ToPayload() app.DeltaPayload {
	return app.DeltaPayload{
		StepConfig:    r.StepConfig,
		ManualData:    r.ManualData,
		UploadedFiles: r.UploadedFiles,
		ChangedBy:     r.ChangedBy,
		ChangeReason:  r.ChangeReason,
	}
}

// InitialStepRequest seeds one step of a new branch.
type InitialStepRequest struct {
	StepNumber int `json:"step_number"`
	StepRequest
}

type CreateBranchRequest struct {
	BranchAtStep int                 `json:"branch_at_step"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	CreatorRole  domain.CreatorRole  `json:"creator_role"`
	CreatedBy    string              `json:"created_by"`
	InitialDelta *InitialStepRequest `json:"initial_delta,omitempty"`
}

func (r CreateBranchRequest) ToMetadata() app.BranchMetadata {
	meta := app.BranchMetadata{
		Name:        r.Name,
		Description: r.Description,
		CreatorRole: r.CreatorRole,
		CreatedBy:   r.CreatedBy,
	}
	if r.InitialDelta != nil {
		meta.InitialDelta = &app.InitialDelta{
			StepNumber: r.InitialDelta.StepNumber,
			Payload:    r.InitialDelta.ToPayload(),
		}
	}
	return meta
}

type TransitionRequest struct {
	Status                domain.ScenarioStatus `json:"status"`
	Actor                 string                `json:"actor"`
	ExpectedActiveVersion *int                  `json:"expected_active_version,omitempty"`
	FreezeSiblings        bool                  `json:"freeze_siblings,omitempty"`
}

func (r TransitionRequest) ToOptions() app.TransitionOptions {
	return app.TransitionOptions{
		Actor:                 r.Actor,
		ExpectedActiveVersion: r.ExpectedActiveVersion,
		FreezeSiblings:        r.FreezeSiblings,
	}
}

type NodeResponse struct {
	ID             string                `json:"id"`
	ProjectID      string                `json:"project_id"`
	ParentNodeID   *string               `json:"parent_node_id"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	CreatorRole    domain.CreatorRole    `json:"creator_role"`
	Status         domain.ScenarioStatus `json:"status"`
	BranchedAtStep *int                  `json:"branched_at_step"`
	TreeDepth      int                   `json:"tree_depth"`
	TreePath       []string              `json:"tree_path"`
	FrozenAt       *time.Time            `json:"frozen_at,omitempty"`
	SelectedAt     *time.Time            `json:"selected_at,omitempty"`
	CreatedBy      string                `json:"created_by"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func NewNodeResponse(n *domain.ScenarioNode) NodeResponse {
	path := n.TreePath
	if path == nil {
		path = []string{}
	}
	return NodeResponse{
		ID:             n.ID,
		ProjectID:      n.ProjectID,
		ParentNodeID:   n.ParentNodeID,
		Name:           n.Name,
		Description:    n.Description,
		CreatorRole:    n.CreatorRole,
		Status:         n.Status,
		BranchedAtStep: n.BranchedAtStep,
		TreeDepth:      n.TreeDepth,
		TreePath:       path,
		FrozenAt:       n.FrozenAt,
		SelectedAt:     n.SelectedAt,
		CreatedBy:      n.CreatedBy,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

type DeltaResponse struct {
	ID             string           `json:"id"`
	ScenarioNodeID string           `json:"scenario_node_id"`
	StepNumber     int              `json:"step_number"`
	StepConfig     json.RawMessage  `json:"step_config,omitempty"`
	ManualData     json.RawMessage  `json:"manual_data,omitempty"`
	UploadedFiles  []domain.FileRef `json:"uploaded_files"`
	ChangedBy      string           `json:"changed_by"`
	ChangeReason   string           `json:"change_reason,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func NewDeltaResponse(d *domain.ScenarioDelta) DeltaResponse {
	files := d.UploadedFiles
	if files == nil {
		files = []domain.FileRef{}
	}
	return DeltaResponse{
		ID:             d.ID,
		ScenarioNodeID: d.ScenarioNodeID,
		StepNumber:     d.StepNumber,
		StepConfig:     d.StepConfig,
		ManualData:     d.ManualData,
		UploadedFiles:  files,
		ChangedBy:      d.ChangedBy,
		ChangeReason:   d.ChangeReason,
		UpdatedAt:      d.UpdatedAt,
	}
}

type NotificationResponse struct {
	ID             string                  `json:"id"`
	ProjectID      string                  `json:"project_id"`
	ScenarioNodeID *string                 `json:"scenario_node_id"`
	Type           domain.NotificationType `json:"type"`
	RecipientRole  *domain.CreatorRole     `json:"recipient_role"`
	Actor          string                  `json:"actor"`
	IsRead         bool                    `json:"is_read"`
	CreatedAt      time.Time               `json:"created_at"`
}

func NewNotificationResponses(ns []*domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, NotificationResponse{
			ID:             n.ID,
			ProjectID:      n.ProjectID,
			ScenarioNodeID: n.ScenarioNodeID,
			Type:           n.Type,
			RecipientRole:  n.RecipientRole,
			Actor:          n.Actor,
			IsRead:         n.IsRead,
			CreatedAt:      n.CreatedAt,
		})
	}
	return out
}
