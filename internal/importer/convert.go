package importer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/google/uuid"
)

// ImportedTree is a converted schema ready for persistence. Nodes are in
// parent-first order and carry the status the file asked for; deltas are
// keyed to the generated node ids.
type ImportedTree struct {
	Project *domain.Project
	Nodes   []*domain.ScenarioNode
	Deltas  []*domain.ScenarioDelta
	// Selected is the node that takes the active pointer, if any.
	Selected *domain.ScenarioNode
}

// Convert transforms a validated ImportSchema into domain objects ready for persistence.
// Call ValidateImportSchema first; Convert assumes the schema is valid.
func Convert(schema *ImportSchema) (*ImportedTree, error) {
	now := time.Now().UTC()

	project := &domain.Project{
		ID:        uuid.New().String(),
		ShortID:   strings.ToUpper(schema.Project.ShortID),
		Name:      strings.TrimSpace(schema.Project.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	out := &ImportedTree{Project: project}

	byRef := make(map[string]*domain.ScenarioNode, len(schema.Scenarios))
	for _, s := range schema.Scenarios {
		status := domain.ScenarioStatus(s.Status)
		if status == "" {
			status = domain.ScenarioDraft
		}
		node := &domain.ScenarioNode{
			ID:          uuid.New().String(),
			ProjectID:   project.ID,
			Name:        strings.TrimSpace(s.Name),
			Description: s.Description,
			CreatorRole: domain.CreatorRole(s.CreatorRole),
			Status:      status,
			TreePath:    []string{},
			CreatedBy:   s.CreatedBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if s.ParentRef != nil && *s.ParentRef != "" {
			parent, ok := byRef[*s.ParentRef]
			if !ok {
				return nil, fmt.Errorf("parent_ref %q not found for scenario %q", *s.ParentRef, s.Ref)
			}
			step := *s.BranchedAtStep
			node.ParentNodeID = &parent.ID
			node.BranchedAtStep = &step
			node.TreeDepth = parent.TreeDepth + 1
			node.TreePath = append(append(make([]string, 0, len(parent.TreePath)+1), parent.TreePath...), parent.ID)
		}

		switch status {
		case domain.ScenarioFrozen:
			node.FrozenAt = &now
		case domain.ScenarioSelected:
			node.SelectedAt = &now
			out.Selected = node
		}

		byRef[s.Ref] = node
		out.Nodes = append(out.Nodes, node)
	}

	for _, d := range schema.Deltas {
		node, ok := byRef[d.ScenarioRef]
		if !ok {
			return nil, fmt.Errorf("scenario_ref %q not found for step %d", d.ScenarioRef, d.Step)
		}
		files := d.UploadedFiles
		if files == nil {
			files = []domain.FileRef{}
		}
		out.Deltas = append(out.Deltas, &domain.ScenarioDelta{
			ID:             uuid.New().String(),
			ScenarioNodeID: node.ID,
			StepNumber:     d.Step,
			StepConfig:     d.StepConfig,
			ManualData:     d.ManualData,
			UploadedFiles:  files,
			ChangedBy:      d.ChangedBy,
			ChangeReason:   d.ChangeReason,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	return out, nil
}

// Export builds an import document from a stored tree. nodes must be in
// parent-first order; node ids become the refs.
func Export(p *domain.Project, nodes []*domain.ScenarioNode, deltas []*domain.ScenarioDelta) *ImportSchema {
	schema := &ImportSchema{
		Project:   ProjectImport{ShortID: p.ShortID, Name: p.Name},
		Scenarios: make([]ScenarioImport, 0, len(nodes)),
	}

	order := make(map[string]int, len(nodes))
	for i, n := range nodes {
		order[n.ID] = i
		s := ScenarioImport{
			Ref:            n.ID,
			ParentRef:      n.ParentNodeID,
			Name:           n.Name,
			Description:    n.Description,
			CreatorRole:    string(n.CreatorRole),
			CreatedBy:      n.CreatedBy,
			BranchedAtStep: n.BranchedAtStep,
		}
		if n.Status != domain.ScenarioDraft {
			s.Status = string(n.Status)
		}
		schema.Scenarios = append(schema.Scenarios, s)
	}

	sorted := make([]*domain.ScenarioDelta, 0, len(deltas))
	for _, d := range deltas {
		if _, ok := order[d.ScenarioNodeID]; ok {
			sorted = append(sorted, d)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if order[a.ScenarioNodeID] != order[b.ScenarioNodeID] {
			return order[a.ScenarioNodeID] < order[b.ScenarioNodeID]
		}
		return a.StepNumber < b.StepNumber
	})
	for _, d := range sorted {
		schema.Deltas = append(schema.Deltas, DeltaImport{
			ScenarioRef:   d.ScenarioNodeID,
			Step:          d.StepNumber,
			StepConfig:    d.StepConfig,
			ManualData:    d.ManualData,
			UploadedFiles: d.UploadedFiles,
			ChangedBy:     d.ChangedBy,
			ChangeReason:  d.ChangeReason,
		})
	}

	return schema
}
