package orgtree

import "testing"

func sampleTree() []*Node {
	return []*Node{
		{
			ID: "rg-tashkent", Title: "Tashkent Region", Lat: 41.2995, Lng: 69.2401, HasPos: true, Zoom: 9,
			Children: []*Node{
				{ID: "dst-chirchiq", Title: "Chirchiq District", Lat: 41.4689, Lng: 69.5822, HasPos: true, Zoom: 11,
					Children: []*Node{
						{ID: "frm-olma", Title: "Olma Farm", Lat: 41.47, Lng: 69.59, HasPos: true, Zoom: 14},
					}},
				{ID: "dst-bekobod", Title: "Bekobod District", Lat: 40.2206, Lng: 69.2698, HasPos: true, Zoom: 11},
			},
		},
		{
			ID: "rg-samarkand", Title: "Samarkand Region", Lat: 39.6542, Lng: 66.9597, HasPos: true, Zoom: 9,
			Children: []*Node{
				{ID: "frm-bogh", Title: "Bogh Orchard Cooperative"},
			},
		},
	}
}

func TestFlattenParentFirst(t *testing.T) {
	flat := Flatten(sampleTree())
	if len(flat) != 6 {
		t.Fatalf("expected 6 nodes, got %d", len(flat))
	}
	if flat[0].ID != "rg-tashkent" || flat[0].Depth != 0 {
		t.Fatalf("root first, got %s depth %d", flat[0].ID, flat[0].Depth)
	}
	if flat[1].ID != "dst-chirchiq" || flat[1].Depth != 1 {
		t.Fatalf("child follows its parent, got %s depth %d", flat[1].ID, flat[1].Depth)
	}
	if flat[2].ID != "frm-olma" || flat[2].Depth != 2 {
		t.Fatalf("grandchild follows, got %s depth %d", flat[2].ID, flat[2].Depth)
	}
}

func TestSearchKeepsAncestors(t *testing.T) {
	roots := sampleTree()
	got, expand := Search(roots, "olma")
	if len(got) != 1 {
		t.Fatalf("expected only the tashkent branch, got %d roots", len(got))
	}
	r := got[0]
	if r.ID != "rg-tashkent" || len(r.Children) != 1 || r.Children[0].ID != "dst-chirchiq" {
		t.Fatalf("ancestors of the match must be retained")
	}
	if !expand["rg-tashkent"] || !expand["dst-chirchiq"] {
		t.Fatalf("expand set must cover ancestors of the match: %v", expand)
	}
	if !expand["frm-olma"] {
		t.Fatalf("matched leaf itself belongs in the expand set: %v", expand)
	}
	if len(expand) != 3 {
		t.Fatalf("expand set holds exactly the surviving nodes: %v", expand)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	got, _ := Search(sampleTree(), "SAMARKAND")
	if len(got) != 1 || got[0].ID != "rg-samarkand" {
		t.Fatalf("case-insensitive match failed: %v", got)
	}
}

func TestSearchEmptyQueryFullCopy(t *testing.T) {
	roots := sampleTree()
	got, expand := Search(roots, "  ")
	if len(got) != len(roots) {
		t.Fatalf("empty query returns the whole tree")
	}
	if len(expand) != 0 {
		t.Fatalf("empty query expands nothing")
	}
	// returned nodes are copies
	got[0].Title = "mutated"
	if roots[0].Title == "mutated" {
		t.Fatalf("search must not alias the input tree")
	}
}

func TestSearchNoMatch(t *testing.T) {
	got, expand := Search(sampleTree(), "zzz")
	if len(got) != 0 || len(expand) != 0 {
		t.Fatalf("no-match search should be empty, got %v %v", got, expand)
	}
}

func TestSearchDoesNotMutateInput(t *testing.T) {
	roots := sampleTree()
	before := len(roots[0].Children)
	Search(roots, "bekobod")
	if len(roots[0].Children) != before {
		t.Fatalf("search pruned the input tree")
	}
}

func TestCheckedSetOrderAndNoPropagation(t *testing.T) {
	s := NewCheckedSet()
	s.Check("rg-tashkent")
	s.Check("dst-bekobod")
	s.Check("rg-tashkent") // duplicate, keeps original slot

	ids := s.IDs()
	if len(ids) != 2 || ids[0] != "rg-tashkent" || ids[1] != "dst-bekobod" {
		t.Fatalf("check order not preserved: %v", ids)
	}
	// checking the parent never marks children
	if s.Checked("dst-chirchiq") {
		t.Fatalf("checking a parent must not propagate")
	}

	s.Uncheck("rg-tashkent")
	if s.Checked("rg-tashkent") || s.Len() != 1 {
		t.Fatalf("uncheck failed: %v", s.IDs())
	}
}

func TestNavigationTarget(t *testing.T) {
	roots := sampleTree()
	n := FindByID(roots, "frm-olma")
	if n == nil {
		t.Fatalf("FindByID missed an existing node")
	}
	tgt, ok := NavigationTarget(n)
	if !ok || tgt.Zoom != 14 {
		t.Fatalf("expected node zoom, got %+v ok=%v", tgt, ok)
	}

	noPos := FindByID(roots, "frm-bogh")
	if _, ok := NavigationTarget(noPos); ok {
		t.Fatalf("node without position has no target")
	}

	zoomless := &Node{ID: "x", HasPos: true, Lat: 1, Lng: 2}
	tgt, ok = NavigationTarget(zoomless)
	if !ok || tgt.Zoom != defaultNavZoom {
		t.Fatalf("default zoom not applied: %+v", tgt)
	}
}
