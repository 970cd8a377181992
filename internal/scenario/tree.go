package scenario

import (
	"cmp"
	"slices"
	"time"

	"github.com/alexanderramin/branchplan/internal/domain"
)

// TreeNode is a display projection of a scenario node. It is rebuilt on
// every read and never written back.
type TreeNode struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	Status         domain.ScenarioStatus `json:"status"`
	CreatorRole    domain.CreatorRole    `json:"creator_role"`
	BranchedAtStep *int                  `json:"branched_at_step"`
	TreeDepth      int                   `json:"tree_depth"`
	Children       []*TreeNode           `json:"children"`
	ChangedSteps   []int                 `json:"changed_steps"`
	IsActive       bool                  `json:"is_active"`
	IsFrozen       bool                  `json:"is_frozen"`
	IsSelected     bool                  `json:"is_selected"`
	IsOrphan       bool                  `json:"is_orphan"`
	CreatedAt      time.Time             `json:"created_at"`
	CreatedBy      string                `json:"created_by"`
}

// BuildTree assembles a flat node list into a forest and returns the roots.
//
// A node becomes a root when it has no parent or when its parent is not in
// nodes; such orphans are kept (IsOrphan) rather than dropped, so a node whose
// parent was paginated out or deleted still renders. Children and roots are
// ordered by (tree depth, created_at), ties broken by id. Assembly is
// iterative, so deep trees cost no stack. Parent cycles must be rejected
// beforehand with Arena.CheckAcyclic; members of a cycle are unreachable
// from the returned roots.
func BuildTree(nodes []*domain.ScenarioNode, deltas []*domain.ScenarioDelta, activeID *string) []*TreeNode {
	changed := make(map[string][]int, len(nodes))
	for _, d := range deltas {
		changed[d.ScenarioNodeID] = append(changed[d.ScenarioNodeID], d.StepNumber)
	}

	byID := make(map[string]*TreeNode, len(nodes))
	order := make([]*TreeNode, 0, len(nodes))
	for _, n := range nodes {
		if _, dup := byID[n.ID]; dup {
			continue
		}
		steps := slices.Clone(changed[n.ID])
		slices.Sort(steps)
		steps = slices.Compact(steps)
		if steps == nil {
			steps = []int{}
		}
		tn := &TreeNode{
			ID:             n.ID,
			Name:           n.Name,
			Description:    n.Description,
			Status:         n.Status,
			CreatorRole:    n.CreatorRole,
			BranchedAtStep: n.BranchedAtStep,
			TreeDepth:      n.TreeDepth,
			Children:       []*TreeNode{},
			ChangedSteps:   steps,
			IsActive:       activeID != nil && *activeID == n.ID,
			IsFrozen:       n.Status == domain.ScenarioFrozen,
			IsSelected:     n.Status == domain.ScenarioSelected,
			CreatedAt:      n.CreatedAt,
			CreatedBy:      n.CreatedBy,
		}
		byID[n.ID] = tn
		order = append(order, tn)
	}

	roots := []*TreeNode{}
	placed := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		tn := byID[n.ID]
		if placed[n.ID] {
			continue
		}
		placed[n.ID] = true
		if n.ParentNodeID == nil {
			roots = append(roots, tn)
			continue
		}
		parent, ok := byID[*n.ParentNodeID]
		if !ok || parent == tn {
			tn.IsOrphan = true
			roots = append(roots, tn)
			continue
		}
		parent.Children = append(parent.Children, tn)
	}

	sortTreeNodes(roots)
	for _, tn := range order {
		sortTreeNodes(tn.Children)
	}
	return roots
}

func sortTreeNodes(nodes []*TreeNode) {
	slices.SortStableFunc(nodes, func(a, b *TreeNode) int {
		if c := cmp.Compare(a.TreeDepth, b.TreeDepth); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Walk visits the forest depth-first in display order using an explicit
// stack. level is 0 for roots; last reports whether the node is the final
// entry among its siblings. Returning false from fn stops the walk.
func Walk(roots []*TreeNode, fn func(n *TreeNode, level int, last bool) bool) {
	type frame struct {
		node  *TreeNode
		level int
		last  bool
	}
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{roots[i], 0, i == len(roots)-1})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(f.node, f.level, f.last) {
			return
		}
		kids := f.node.Children
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{kids[i], f.level + 1, i == len(kids)-1})
		}
	}
}

// Count returns the number of nodes in the forest.
func Count(roots []*TreeNode) int {
	n := 0
	Walk(roots, func(*TreeNode, int, bool) bool {
		n++
		return true
	})
	return n
}
