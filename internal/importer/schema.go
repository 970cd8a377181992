package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexanderramin/branchplan/internal/domain"
	"gopkg.in/yaml.v3"
)

// ImportSchema is the top-level structure of a scenario tree import or
// export file.
type ImportSchema struct {
	Project   ProjectImport    `json:"project"`
	Scenarios []ScenarioImport `json:"scenarios"`
	Deltas    []DeltaImport    `json:"deltas,omitempty"`
}

// ProjectImport defines the project-level fields in the import file.
type ProjectImport struct {
	ShortID string `json:"short_id,omitempty"`
	Name    string `json:"name"`
}

// ScenarioImport defines one scenario node. Parents must appear before
// their children; the single scenario without parent_ref is the root.
type ScenarioImport struct {
	Ref            string  `json:"ref"`
	ParentRef      *string `json:"parent_ref,omitempty"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	CreatorRole    string  `json:"creator_role"`
	CreatedBy      string  `json:"created_by,omitempty"`
	BranchedAtStep *int    `json:"branched_at_step,omitempty"`
	Status         string  `json:"status,omitempty"`
}

// DeltaImport defines the override of one step of one scenario.
type DeltaImport struct {
	ScenarioRef   string           `json:"scenario_ref"`
	Step          int              `json:"step"`
	StepConfig    json.RawMessage  `json:"step_config,omitempty"`
	ManualData    json.RawMessage  `json:"manual_data,omitempty"`
	UploadedFiles []domain.FileRef `json:"uploaded_files,omitempty"`
	ChangedBy     string           `json:"changed_by,omitempty"`
	ChangeReason  string           `json:"change_reason,omitempty"`
}

// LoadImportSchema reads and parses an import file. Files ending in .yaml
// or .yml are parsed as YAML, everything else as JSON.
func LoadImportSchema(path string) (*ImportSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseJSON parses a JSON import document.
func ParseJSON(data []byte) (*ImportSchema, error) {
	var schema ImportSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parsing import file: %w", err)
	}
	return &schema, nil
}

// ParseYAML parses a YAML import document. Payloads are plain YAML mappings
// and are carried over as JSON.
func ParseYAML(data []byte) (*ImportSchema, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing import file: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parsing import file: %w", err)
	}
	return ParseJSON(raw)
}
