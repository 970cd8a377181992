package domain

import (
	"fmt"
	"regexp"
	"time"
)

var shortIDPattern = regexp.MustCompile(`^[A-Z]{3,6}[0-9]{2,4}$`)

// Project is the owner of a scenario tree. Only the fields the scenario
// engine needs are modeled; the rest of the procurement project lives in
// the surrounding application.
type Project struct {
	ID               string
	ShortID          string
	Name             string
	ActiveScenarioID *string
	ActiveVersion    int // compare-and-set counter for ActiveScenarioID
	Revision         int // bumped by every scenario mutation
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidateShortID checks that ShortID, when set, matches the required
// format: 3-6 uppercase letters followed by 2-4 digits (e.g. PRJ01, BUILD0234).
func (p *Project) ValidateShortID() error {
	if p.ShortID == "" {
		return nil
	}
	if !shortIDPattern.MatchString(p.ShortID) {
		return fmt.Errorf("short ID %q must be 3-6 uppercase letters followed by 2-4 digits (e.g. PRJ01): %w",
			p.ShortID, ErrInvalidArgument)
	}
	return nil
}

// DisplayID returns the best short identifier for display.
// It prefers ShortID; if empty it truncates ID to 8 characters.
func (p *Project) DisplayID() string {
	if p.ShortID != "" {
		return p.ShortID
	}
	if len(p.ID) >= 8 {
		return p.ID[:8]
	}
	return p.ID
}

// IsActiveScenario reports whether nodeID currently holds the active pointer.
func (p *Project) IsActiveScenario(nodeID string) bool {
	return p.ActiveScenarioID != nil && *p.ActiveScenarioID == nodeID
}
