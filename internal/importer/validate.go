package importer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alexanderramin/branchplan/internal/domain"
)

// ValidateImportSchema checks the import schema for errors before conversion.
// Returns a slice of all validation errors found.
func ValidateImportSchema(schema *ImportSchema) []error {
	var errs []error

	errs = append(errs, validateProject(&schema.Project)...)

	scenarios := make(map[string]*ScenarioImport)
	errs = append(errs, validateScenarios(schema.Scenarios, scenarios)...)
	errs = append(errs, validateDeltas(schema.Deltas, scenarios)...)

	return errs
}

func validateProject(p *ProjectImport) []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, fmt.Errorf("project.name is required"))
	}
	candidate := domain.Project{ShortID: strings.ToUpper(p.ShortID)}
	if err := candidate.ValidateShortID(); err != nil {
		errs = append(errs, fmt.Errorf("project.short_id: %w", err))
	}

	return errs
}

func validateScenarios(items []ScenarioImport, byRef map[string]*ScenarioImport) []error {
	var errs []error

	if len(items) == 0 {
		return append(errs, fmt.Errorf("scenarios: at least the root scenario is required"))
	}

	roots, selected := 0, 0
	for i := range items {
		s := &items[i]
		prefix := fmt.Sprintf("scenarios[%d]", i)

		if s.Ref == "" {
			errs = append(errs, fmt.Errorf("%s.ref is required", prefix))
		} else if byRef[s.Ref] != nil {
			errs = append(errs, fmt.Errorf("%s.ref: duplicate ref %q", prefix, s.Ref))
		}

		if strings.TrimSpace(s.Name) == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if s.CreatorRole == "" {
			errs = append(errs, fmt.Errorf("%s.creator_role is required", prefix))
		} else if !domain.ValidCreatorRoles[domain.CreatorRole(s.CreatorRole)] {
			errs = append(errs, fmt.Errorf("%s.creator_role: invalid value %q", prefix, s.CreatorRole))
		}
		if s.Status != "" && !domain.ValidScenarioStatuses[domain.ScenarioStatus(s.Status)] {
			errs = append(errs, fmt.Errorf("%s.status: invalid value %q", prefix, s.Status))
		}
		if s.Status == string(domain.ScenarioSelected) {
			selected++
		}

		if s.ParentRef == nil || *s.ParentRef == "" {
			roots++
			if s.BranchedAtStep != nil {
				errs = append(errs, fmt.Errorf("%s.branched_at_step must be empty for the root scenario", prefix))
			}
		} else {
			errs = append(errs, validateBranch(prefix, s, byRef[*s.ParentRef])...)
		}

		if s.Ref != "" && byRef[s.Ref] == nil {
			byRef[s.Ref] = s
		}
	}

	if roots != 1 {
		errs = append(errs, fmt.Errorf("scenarios: exactly one root scenario is required, found %d", roots))
	}
	if selected > 1 {
		errs = append(errs, fmt.Errorf("scenarios: at most one scenario may be selected, found %d", selected))
	}

	return errs
}

func validateBranch(prefix string, s *ScenarioImport, parent *ScenarioImport) []error {
	var errs []error

	if parent == nil {
		errs = append(errs, fmt.Errorf("%s.parent_ref: ref %q not found (must appear earlier in scenarios list)", prefix, *s.ParentRef))
	}
	if s.BranchedAtStep == nil {
		return append(errs, fmt.Errorf("%s.branched_at_step is required for a branch", prefix))
	}
	step := *s.BranchedAtStep
	if err := domain.ValidateStep(step); err != nil {
		errs = append(errs, fmt.Errorf("%s.branched_at_step: %w", prefix, err))
	}
	if parent != nil && parent.BranchedAtStep != nil && step < *parent.BranchedAtStep {
		errs = append(errs, fmt.Errorf("%s.branched_at_step %d precedes parent branch step %d", prefix, step, *parent.BranchedAtStep))
	}

	return errs
}

func validateDeltas(items []DeltaImport, scenarios map[string]*ScenarioImport) []error {
	var errs []error

	type key struct {
		ref  string
		step int
	}
	seen := make(map[key]bool)

	for i, d := range items {
		prefix := fmt.Sprintf("deltas[%d]", i)

		s := scenarios[d.ScenarioRef]
		if d.ScenarioRef == "" {
			errs = append(errs, fmt.Errorf("%s.scenario_ref is required", prefix))
		} else if s == nil {
			errs = append(errs, fmt.Errorf("%s.scenario_ref: ref %q not found in scenarios", prefix, d.ScenarioRef))
		}

		if err := domain.ValidateStep(d.Step); err != nil {
			errs = append(errs, fmt.Errorf("%s.step: %w", prefix, err))
		} else if s != nil && s.BranchedAtStep != nil && d.Step < *s.BranchedAtStep {
			errs = append(errs, fmt.Errorf("%s.step %d precedes branch point %d of %q", prefix, d.Step, *s.BranchedAtStep, d.ScenarioRef))
		}

		k := key{d.ScenarioRef, d.Step}
		if seen[k] {
			errs = append(errs, fmt.Errorf("%s: duplicate delta for %q step %d", prefix, d.ScenarioRef, d.Step))
		}
		seen[k] = true

		payloads := []struct {
			name string
			raw  json.RawMessage
		}{
			{"step_config", d.StepConfig},
			{"manual_data", d.ManualData},
		}
		for _, p := range payloads {
			if len(p.raw) > 0 && !json.Valid(p.raw) {
				errs = append(errs, fmt.Errorf("%s.%s is not valid JSON", prefix, p.name))
			}
		}
	}

	return errs
}
