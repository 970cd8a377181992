package scenario

import (
	"fmt"
	"slices"

	"github.com/alexanderramin/branchplan/internal/domain"
)

// transitions lists the statuses reachable from each status. frozen and
// selected are terminal for callers; the only way out of selected is being
// displaced by another selection, which Displaced describes.
var transitions = map[domain.ScenarioStatus][]domain.ScenarioStatus{
	domain.ScenarioDraft:    {domain.ScenarioProposed},
	domain.ScenarioProposed: {domain.ScenarioFrozen, domain.ScenarioSelected},
}

// CanTransition reports whether from -> to is a legal caller transition.
func CanTransition(from, to domain.ScenarioStatus) bool {
	return slices.Contains(transitions[from], to)
}

// NextStatuses returns the statuses a node in from may move to.
func NextStatuses(from domain.ScenarioStatus) []domain.ScenarioStatus {
	return slices.Clone(transitions[from])
}

// ValidateTransition returns ErrInvalidArgument for an unknown target status
// and ErrConflict when the node's current status does not allow the move.
func ValidateTransition(from, to domain.ScenarioStatus) error {
	if !domain.ValidScenarioStatuses[to] {
		return fmt.Errorf("unknown scenario status %q: %w", to, domain.ErrInvalidArgument)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("cannot move scenario from %s to %s: %w", from, to, domain.ErrConflict)
	}
	return nil
}

// Displaced is the status given to the previous holder of the active
// pointer when another node is selected. It stays immutable history.
const Displaced = domain.ScenarioFrozen

// NotificationFor maps a reached status to the notification announcing it.
func NotificationFor(to domain.ScenarioStatus) domain.NotificationType {
	switch to {
	case domain.ScenarioProposed:
		return domain.NotifyScenarioProposed
	case domain.ScenarioFrozen:
		return domain.NotifyScenarioFrozen
	case domain.ScenarioSelected:
		return domain.NotifyScenarioSelected
	default:
		return domain.NotifyScenarioUpdated
	}
}

// CheckBranch validates forking a child from parent at step. The branch
// point must be a real step and may not precede the parent's own branch
// point, otherwise the child could rewrite history the parent inherited.
// maxDepth limits the child's tree depth; 0 means unlimited.
func CheckBranch(parent *domain.ScenarioNode, step, maxDepth int) error {
	if err := domain.ValidateStep(step); err != nil {
		return err
	}
	if parent.BranchedAtStep != nil && step < *parent.BranchedAtStep {
		return fmt.Errorf("branch step %d precedes parent branch step %d: %w",
			step, *parent.BranchedAtStep, domain.ErrInvalidArgument)
	}
	if maxDepth > 0 && parent.TreeDepth+1 > maxDepth {
		return fmt.Errorf("branch depth %d exceeds limit %d: %w",
			parent.TreeDepth+1, maxDepth, domain.ErrInvalidArgument)
	}
	return nil
}

// CheckDelta validates writing a delta for step to node.
func CheckDelta(node *domain.ScenarioNode, step int) error {
	if err := domain.ValidateStep(step); err != nil {
		return err
	}
	if !node.IsEditable() {
		return fmt.Errorf("scenario %s is %s and no longer editable: %w", node.ID, node.Status, domain.ErrConflict)
	}
	if !node.CoversStep(step) {
		return fmt.Errorf("step %d precedes branch point %d of scenario %s: %w",
			step, *node.BranchedAtStep, node.ID, domain.ErrInvalidArgument)
	}
	return nil
}
