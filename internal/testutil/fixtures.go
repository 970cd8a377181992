package testutil

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/google/uuid"
)

var testShortIDCounter atomic.Int64

// Project options
type ProjectOption func(*domain.Project)

func WithShortID(id string) ProjectOption {
	return func(p *domain.Project) {
		p.ShortID = id
	}
}

func defaultShortID(name string) string {
	upper := strings.ToUpper(name)
	var letters []byte
	for i := 0; i < len(upper) && len(letters) < 3; i++ {
		if upper[i] >= 'A' && upper[i] <= 'Z' {
			letters = append(letters, upper[i])
		}
	}
	for len(letters) < 3 {
		letters = append(letters, 'X')
	}
	n := testShortIDCounter.Add(1)
	return fmt.Sprintf("%s%02d", string(letters), n)
}

func NewTestProject(name string, opts ...ProjectOption) *domain.Project {
	now := time.Now().UTC()
	p := &domain.Project{
		ID:        uuid.New().String(),
		ShortID:   defaultShortID(name),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Scenario node options
type ScenarioOption func(*domain.ScenarioNode)

func WithStatus(s domain.ScenarioStatus) ScenarioOption {
	return func(n *domain.ScenarioNode) {
		n.Status = s
	}
}

func WithCreatorRole(r domain.CreatorRole) ScenarioOption {
	return func(n *domain.ScenarioNode) {
		n.CreatorRole = r
	}
}

func WithCreatedBy(user string) ScenarioOption {
	return func(n *domain.ScenarioNode) {
		n.CreatedBy = user
	}
}

func WithCreatedAt(t time.Time) ScenarioOption {
	return func(n *domain.ScenarioNode) {
		n.CreatedAt = t
		n.UpdatedAt = t
	}
}

func WithDescription(d string) ScenarioOption {
	return func(n *domain.ScenarioNode) {
		n.Description = d
	}
}

// NewTestRoot builds the root scenario of a project.
func NewTestRoot(projectID, name string, opts ...ScenarioOption) *domain.ScenarioNode {
	now := time.Now().UTC()
	n := &domain.ScenarioNode{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Name:        name,
		CreatorRole: domain.RoleManager,
		Status:      domain.ScenarioDraft,
		TreePath:    []string{},
		CreatedBy:   "tester",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewTestBranch builds a child of parent forked at step, with depth and
// path derived from the parent.
func NewTestBranch(parent *domain.ScenarioNode, name string, step int, opts ...ScenarioOption) *domain.ScenarioNode {
	now := time.Now().UTC()
	parentID := parent.ID
	path := append(append([]string{}, parent.TreePath...), parent.ID)
	n := &domain.ScenarioNode{
		ID:             uuid.New().String(),
		ProjectID:      parent.ProjectID,
		ParentNodeID:   &parentID,
		Name:           name,
		CreatorRole:    domain.RoleManager,
		Status:         domain.ScenarioDraft,
		BranchedAtStep: &step,
		TreeDepth:      parent.TreeDepth + 1,
		TreePath:       path,
		CreatedBy:      "tester",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Scenario delta options
type DeltaOption func(*domain.ScenarioDelta)

func WithManualData(raw string) DeltaOption {
	return func(d *domain.ScenarioDelta) {
		d.ManualData = json.RawMessage(raw)
	}
}

func WithFiles(files ...domain.FileRef) DeltaOption {
	return func(d *domain.ScenarioDelta) {
		d.UploadedFiles = files
	}
}

func WithChangedBy(user, reason string) DeltaOption {
	return func(d *domain.ScenarioDelta) {
		d.ChangedBy = user
		d.ChangeReason = reason
	}
}

// NewTestDelta builds a delta for nodeID at step with the given step config.
func NewTestDelta(nodeID string, step int, config string, opts ...DeltaOption) *domain.ScenarioDelta {
	now := time.Now().UTC()
	d := &domain.ScenarioDelta{
		ID:             uuid.New().String(),
		ScenarioNodeID: nodeID,
		StepNumber:     step,
		StepConfig:     json.RawMessage(config),
		UploadedFiles:  []domain.FileRef{},
		ChangedBy:      "tester",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}
