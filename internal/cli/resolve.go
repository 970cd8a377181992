package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexanderramin/branchplan/internal/domain"
)

// resolveProject resolves a project reference which can be:
//   - A full project ID or a short ID (case-insensitive)
//   - A unique project ID prefix
func resolveProject(ctx context.Context, app *App, input string) (*domain.Project, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	p, err := app.Projects.Find(ctx, input)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if upper := strings.ToUpper(input); upper != input {
		if p, err := app.Projects.Find(ctx, upper); err == nil {
			return p, nil
		}
	}

	projects, err := app.Projects.List(ctx)
	if err != nil {
		return nil, err
	}
	var matches []*domain.Project
	for _, p := range projects {
		if strings.HasPrefix(p.ID, input) {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("project not found: %q", input)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("project ID prefix %q is ambiguous (%d matches)", input, len(matches))
	}
}

// resolveNodeID resolves a scenario identifier which can be:
//   - A full node ID (passed through directly)
//   - A unique ID prefix within the project named by projectRef
func resolveNodeID(ctx context.Context, app *App, input, projectRef string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("scenario ID is required")
	}
	if projectRef == "" {
		return input, nil
	}

	p, err := resolveProject(ctx, app, projectRef)
	if err != nil {
		return "", err
	}
	tree, err := app.Scenarios.GetScenarioTree(ctx, p.ID)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, n := range tree.FlatNodes {
		if n.ID == input {
			return n.ID, nil
		}
		if strings.HasPrefix(n.ID, input) {
			matches = append(matches, n.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("scenario %q not found in project %s", input, p.DisplayID())
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("scenario ID prefix %q is ambiguous (%d matches)", input, len(matches))
	}
}
