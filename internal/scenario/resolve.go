package scenario

import (
	"encoding/json"
	"fmt"

	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/tidwall/gjson"
)

// StepOrigin tells where a resolved step came from, relative to the node
// being resolved.
type StepOrigin string

const (
	OriginChanged   StepOrigin = "changed"   // the node's own delta
	OriginInherited StepOrigin = "inherited" // an ancestor's delta
	OriginEmpty     StepOrigin = "empty"     // no delta anywhere in the chain
)

// ResolvedStep is the effective configuration of one step. For an empty
// step the payloads and provenance are nil; callers apply their own defaults.
type ResolvedStep struct {
	StepNumber    int              `json:"step_number"`
	StepConfig    json.RawMessage  `json:"step_config,omitempty"`
	ManualData    json.RawMessage  `json:"manual_data,omitempty"`
	UploadedFiles []domain.FileRef `json:"uploaded_files,omitempty"`
	SourceNodeID  *string          `json:"source_node_id"`
	SourceDepth   *int             `json:"source_depth"`
	Origin        StepOrigin       `json:"origin"`
}

// IsEmpty reports whether no node in the chain overrides the step.
func (s ResolvedStep) IsEmpty() bool {
	return s.SourceNodeID == nil
}

// Lookup runs a gjson path against the step, e.g. "manual_data.budget" or
// "step_config.items.0.sku".
func (s ResolvedStep) Lookup(path string) (gjson.Result, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encoding step %d: %w", s.StepNumber, err)
	}
	return gjson.GetBytes(doc, path), nil
}

// ResolvedScenario holds one ResolvedStep per constructor step, in order.
type ResolvedScenario struct {
	ScenarioID string         `json:"scenario_id"`
	Steps      []ResolvedStep `json:"steps"`
}

// Step returns the resolved entry for step, or nil when out of range.
func (r *ResolvedScenario) Step(step int) *ResolvedStep {
	if step < domain.FirstStep || step > domain.LastStep || len(r.Steps) != domain.StepCount {
		return nil
	}
	return &r.Steps[step-domain.FirstStep]
}

// Lookup runs a gjson path against one resolved step.
func (r *ResolvedScenario) Lookup(step int, path string) (gjson.Result, error) {
	s := r.Step(step)
	if s == nil {
		return gjson.Result{}, domain.ValidateStep(step)
	}
	return s.Lookup(path)
}

// StepConfigs returns the non-empty step configs keyed by step number.
func (r *ResolvedScenario) StepConfigs() map[int]json.RawMessage {
	out := make(map[int]json.RawMessage)
	for _, s := range r.Steps {
		if !s.IsEmpty() && len(s.StepConfig) > 0 {
			out[s.StepNumber] = s.StepConfig
		}
	}
	return out
}

// ManualData returns the non-empty manual data keyed by step number.
func (r *ResolvedScenario) ManualData() map[int]json.RawMessage {
	out := make(map[int]json.RawMessage)
	for _, s := range r.Steps {
		if !s.IsEmpty() && len(s.ManualData) > 0 {
			out[s.StepNumber] = s.ManualData
		}
	}
	return out
}

// Resolve computes the effective configuration of chain[0] by closest-wins
// layering: for every step the first node in chain (ordered target first,
// root last) holding a delta for that step supplies the whole step. Deltas
// are never merged field by field.
//
// deltas may contain entries for nodes outside chain; they are ignored.
// Duplicate (node, step) deltas, steps outside 1..7 and deltas before a
// node's branch point fail with ErrInconsistent. A supplying payload that is
// not valid JSON fails with ErrDataCorruption instead of being treated as
// absent.
func Resolve(chain []*domain.ScenarioNode, deltas []*domain.ScenarioDelta) (*ResolvedScenario, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("empty ancestor chain: %w", domain.ErrInvalidArgument)
	}

	inChain := make(map[string]*domain.ScenarioNode, len(chain))
	for _, n := range chain {
		inChain[n.ID] = n
	}

	type key struct {
		node string
		step int
	}
	byKey := make(map[key]*domain.ScenarioDelta, len(deltas))
	for _, d := range deltas {
		owner, ok := inChain[d.ScenarioNodeID]
		if !ok {
			continue
		}
		if err := domain.ValidateStep(d.StepNumber); err != nil {
			return nil, fmt.Errorf("delta %s of node %s: step %d: %w",
				d.ID, d.ScenarioNodeID, d.StepNumber, domain.ErrInconsistent)
		}
		if !owner.CoversStep(d.StepNumber) {
			return nil, fmt.Errorf("node %s has a delta for step %d before its branch point %d: %w",
				owner.ID, d.StepNumber, *owner.BranchedAtStep, domain.ErrInconsistent)
		}
		k := key{d.ScenarioNodeID, d.StepNumber}
		if _, dup := byKey[k]; dup {
			return nil, fmt.Errorf("node %s has more than one delta for step %d: %w",
				d.ScenarioNodeID, d.StepNumber, domain.ErrInconsistent)
		}
		byKey[k] = d
	}

	target := chain[0]
	out := &ResolvedScenario{
		ScenarioID: target.ID,
		Steps:      make([]ResolvedStep, 0, domain.StepCount),
	}
	for step := domain.FirstStep; step <= domain.LastStep; step++ {
		rs := ResolvedStep{StepNumber: step, Origin: OriginEmpty}
		for _, n := range chain {
			d, ok := byKey[key{n.ID, step}]
			if !ok {
				continue
			}
			if err := checkPayload(d, "step_config", d.StepConfig); err != nil {
				return nil, err
			}
			if err := checkPayload(d, "manual_data", d.ManualData); err != nil {
				return nil, err
			}
			sourceID, depth := n.ID, n.TreeDepth
			rs.StepConfig = d.StepConfig
			rs.ManualData = d.ManualData
			rs.UploadedFiles = d.UploadedFiles
			rs.SourceNodeID = &sourceID
			rs.SourceDepth = &depth
			if n.ID == target.ID {
				rs.Origin = OriginChanged
			} else {
				rs.Origin = OriginInherited
			}
			break
		}
		out.Steps = append(out.Steps, rs)
	}
	return out, nil
}

// checkPayload accepts an absent payload or any valid JSON document.
func checkPayload(d *domain.ScenarioDelta, field string, payload json.RawMessage) error {
	if len(payload) == 0 || gjson.ValidBytes(payload) {
		return nil
	}
	return fmt.Errorf("%s of node %s step %d is not valid JSON: %w",
		field, d.ScenarioNodeID, d.StepNumber, domain.ErrDataCorruption)
}
