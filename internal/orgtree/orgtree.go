// Package orgtree indexes the organization hierarchy shown in the map
// sidebar: flattening, search with ancestor retention, the checked-org
// set driving facility queries, and fly-to navigation targets.
//
// The tree itself is owned by the caller; every function here treats
// it as read-only and returns fresh nodes where pruning is needed.
package orgtree

import "strings"

// Node is one organization in the hierarchy. Position and Zoom drive
// map navigation when the org is selected; either may be absent on
// grouping nodes.
type Node struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Lat      float64 `json:"lat,omitempty"`
	Lng      float64 `json:"lng,omitempty"`
	HasPos   bool    `json:"hasPos,omitempty"`
	Zoom     int     `json:"zoom,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// FlatNode is a node paired with its depth, parent-first.
type FlatNode struct {
	*Node
	Depth int
}

// Flatten walks the tree depth first, parents before children.
func Flatten(roots []*Node) []FlatNode {
	var out []FlatNode
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		if n == nil {
			return
		}
		out = append(out, FlatNode{Node: n, Depth: depth})
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return out
}

// FindByID returns the first node with the given id, depth first.
func FindByID(roots []*Node, id string) *Node {
	for _, fn := range Flatten(roots) {
		if fn.ID == id {
			return fn.Node
		}
	}
	return nil
}

// Search prunes the tree to nodes whose title contains the query
// (case insensitive) plus all their ancestors. The returned expand set
// holds the ids of every surviving node, matches included, which is
// what the sidebar auto-expands so matches become visible. An empty
// query returns a full copy and an empty expand set.
//
// The input tree is never modified; returned nodes are copies.
func Search(roots []*Node, query string) ([]*Node, map[string]bool) {
	expand := map[string]bool{}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return copyTree(roots), expand
	}

	var prune func(n *Node) *Node
	prune = func(n *Node) *Node {
		if n == nil {
			return nil
		}
		var kept []*Node
		for _, c := range n.Children {
			if pc := prune(c); pc != nil {
				kept = append(kept, pc)
			}
		}
		matched := strings.Contains(strings.ToLower(n.Title), q)
		if !matched && len(kept) == 0 {
			return nil
		}
		expand[n.ID] = true
		cp := *n
		cp.Children = kept
		return &cp
	}

	var out []*Node
	for _, r := range roots {
		if pr := prune(r); pr != nil {
			out = append(out, pr)
		}
	}
	return out, expand
}

func copyTree(roots []*Node) []*Node {
	out := make([]*Node, 0, len(roots))
	for _, r := range roots {
		if r == nil {
			continue
		}
		cp := *r
		cp.Children = copyTree(r.Children)
		out = append(out, &cp)
	}
	return out
}

// CheckedSet is the ordered set of checked org ids. Checking a parent
// does not propagate to its children; merge priority of facility
// results follows first-check order.
type CheckedSet struct {
	order []string
	seen  map[string]bool
}

func NewCheckedSet(ids ...string) *CheckedSet {
	s := &CheckedSet{seen: map[string]bool{}}
	for _, id := range ids {
		s.Check(id)
	}
	return s
}

func (s *CheckedSet) Check(id string) {
	if id == "" || s.seen[id] {
		return
	}
	s.seen[id] = true
	s.order = append(s.order, id)
}

func (s *CheckedSet) Uncheck(id string) {
	if !s.seen[id] {
		return
	}
	delete(s.seen, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *CheckedSet) Checked(id string) bool { return s.seen[id] }

func (s *CheckedSet) Len() int { return len(s.order) }

// IDs returns the checked ids in first-check order. The slice is a
// copy and safe to retain.
func (s *CheckedSet) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

const defaultNavZoom = 12

// NavTarget is a fly-to destination for an org selection.
type NavTarget struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom int     `json:"zoom"`
}

// NavigationTarget resolves where the map should fly when the node is
// selected. Nodes without a position have no target.
func NavigationTarget(n *Node) (NavTarget, bool) {
	if n == nil || !n.HasPos {
		return NavTarget{}, false
	}
	zoom := n.Zoom
	if zoom <= 0 {
		zoom = defaultNavZoom
	}
	return NavTarget{Lat: n.Lat, Lng: n.Lng, Zoom: zoom}, true
}
