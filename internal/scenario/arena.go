// Package scenario implements the branching engine behind the project
// constructor: tree assembly, closest-wins delta resolution and the status
// lifecycle rules. Everything here is a pure function of its inputs.
package scenario

import (
	"fmt"

	"github.com/alexanderramin/branchplan/internal/domain"
)

// Arena is a flat, id-indexed view over a project's scenario nodes. Parent
// links are followed through the index rather than through pointers, so a
// corrupt parent graph can be detected instead of looping forever.
type Arena struct {
	nodes []*domain.ScenarioNode
	index map[string]int
}

// NewArena indexes nodes in one pass. When ids repeat, the last one wins.
func NewArena(nodes []*domain.ScenarioNode) *Arena {
	a := &Arena{
		nodes: nodes,
		index: make(map[string]int, len(nodes)),
	}
	for i, n := range nodes {
		a.index[n.ID] = i
	}
	return a
}

func (a *Arena) Len() int {
	return len(a.nodes)
}

// Get returns the node with the given id, or nil.
func (a *Arena) Get(id string) *domain.ScenarioNode {
	i, ok := a.index[id]
	if !ok {
		return nil
	}
	return a.nodes[i]
}

// Children returns the direct children of id in arena order.
func (a *Arena) Children(id string) []*domain.ScenarioNode {
	var out []*domain.ScenarioNode
	for _, n := range a.nodes {
		if n.ParentNodeID != nil && *n.ParentNodeID == id {
			out = append(out, n)
		}
	}
	return out
}

// Siblings returns the nodes sharing id's parent, excluding id itself.
// Roots have no siblings.
func (a *Arena) Siblings(id string) []*domain.ScenarioNode {
	n := a.Get(id)
	if n == nil || n.ParentNodeID == nil {
		return nil
	}
	var out []*domain.ScenarioNode
	for _, c := range a.Children(*n.ParentNodeID) {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// Chain returns the ancestor chain of id ordered from the node itself up to
// the root (closest first). It fails with ErrNotFound when id is not in the
// arena and with ErrInconsistent when a parent is missing, the parent links
// form a cycle, or a stored tree depth disagrees with the chain.
func (a *Arena) Chain(id string) ([]*domain.ScenarioNode, error) {
	cur := a.Get(id)
	if cur == nil {
		return nil, fmt.Errorf("scenario node %s: %w", id, domain.ErrNotFound)
	}

	var chain []*domain.ScenarioNode
	seen := make(map[string]bool)
	for {
		if seen[cur.ID] {
			return nil, fmt.Errorf("parent cycle through node %s: %w", cur.ID, domain.ErrInconsistent)
		}
		seen[cur.ID] = true
		chain = append(chain, cur)

		if cur.ParentNodeID == nil {
			break
		}
		parent := a.Get(*cur.ParentNodeID)
		if parent == nil {
			return nil, fmt.Errorf("node %s references missing parent %s: %w",
				cur.ID, *cur.ParentNodeID, domain.ErrInconsistent)
		}
		if parent.ProjectID != cur.ProjectID {
			return nil, fmt.Errorf("node %s has parent %s in another project: %w",
				cur.ID, parent.ID, domain.ErrInconsistent)
		}
		cur = parent
	}

	if err := checkDepths(chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// checkDepths verifies tree_depth along a closest-first chain.
func checkDepths(chain []*domain.ScenarioNode) error {
	for i, n := range chain {
		want := len(chain) - 1 - i
		if n.TreeDepth != want {
			return fmt.Errorf("node %s has tree depth %d, chain implies %d: %w",
				n.ID, n.TreeDepth, want, domain.ErrInconsistent)
		}
	}
	return nil
}

// PathOf returns the ancestor ids of a closest-first chain, root first,
// excluding the chain's first node.
func PathOf(chain []*domain.ScenarioNode) []string {
	if len(chain) <= 1 {
		return []string{}
	}
	path := make([]string, 0, len(chain)-1)
	for i := len(chain) - 1; i >= 1; i-- {
		path = append(path, chain[i].ID)
	}
	return path
}

// CheckAcyclic fails with ErrInconsistent when parent links form a cycle.
// Parents missing from the arena end a walk without error; they are the
// orphan case handled by BuildTree.
func (a *Arena) CheckAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(a.nodes))
	for _, n := range a.nodes {
		var path []string
		cur := n
		for cur != nil && state[cur.ID] == unvisited {
			state[cur.ID] = visiting
			path = append(path, cur.ID)
			if cur.ParentNodeID == nil {
				cur = nil
				break
			}
			cur = a.Get(*cur.ParentNodeID)
		}
		if cur != nil && state[cur.ID] == visiting {
			return fmt.Errorf("parent cycle through node %s: %w", cur.ID, domain.ErrInconsistent)
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return nil
}
