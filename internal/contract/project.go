package contract

import (
	"time"

	"github.com/alexanderramin/branchplan/internal/app"
	"github.com/alexanderramin/branchplan/internal/domain"
)

type RootRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	CreatorRole domain.CreatorRole `json:"creator_role"`
	CreatedBy   string             `json:"created_by"`
}

func (r RootRequest) ToMetadata() app.RootMetadata {
	return app.RootMetadata{
		Name:        r.Name,
		Description: r.Description,
		CreatorRole: r.CreatorRole,
		CreatedBy:   r.CreatedBy,
	}
}

// CreateProjectRequest creates a project, optionally with its root scenario.
type CreateProjectRequest struct {
	Name    string       `json:"name"`
	ShortID string       `json:"short_id,omitempty"`
	Root    *RootRequest `json:"root,omitempty"`
}

func (r CreateProjectRequest) ToProject() *domain.Project {
	return &domain.Project{Name: r.Name, ShortID: r.ShortID}
}

type ProjectResponse struct {
	ID               string        `json:"id"`
	ShortID          string        `json:"short_id,omitempty"`
	Name             string        `json:"name"`
	ActiveScenarioID *string       `json:"active_scenario_id"`
	ActiveVersion    int           `json:"active_version"`
	Revision         int           `json:"revision"`
	CreatedAt        time.Time     `json:"created_at"`
	Root             *NodeResponse `json:"root,omitempty"`
}

func NewProjectResponse(p *domain.Project, root *domain.ScenarioNode) ProjectResponse {
	resp := ProjectResponse{
		ID:               p.ID,
		ShortID:          p.ShortID,
		Name:             p.Name,
		ActiveScenarioID: p.ActiveScenarioID,
		ActiveVersion:    p.ActiveVersion,
		Revision:         p.Revision,
		CreatedAt:        p.CreatedAt,
	}
	if root != nil {
		r := NewNodeResponse(root)
		resp.Root = &r
	}
	return resp
}

// ImportResponse reports what a project import created.
type ImportResponse struct {
	Project       ProjectResponse `json:"project"`
	ScenarioCount int             `json:"scenario_count"`
	DeltaCount    int             `json:"delta_count"`
}
