package h3mapper

import (
	"reflect"
	"sort"
	"testing"

	"github.com/paulmach/orb"

	"github.com/umarovb/agromap-core/internal/core/model"
)

func TestBBox_HappyPath_SortedUnique(t *testing.T) {
	m, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bb := model.BBox{MinLng: 69.10, MinLat: 41.20, MaxLng: 69.40, MaxLat: 41.40}

	cells, err := m.CellsForBBox(bb)
	if err != nil {
		t.Fatalf("CellsForBBox err: %v", err)
	}
	if len(cells) == 0 {
		t.Fatalf("expected non-empty cells for bbox")
	}
	if !sort.StringsAreSorted(cells) {
		t.Fatalf("cells must be sorted")
	}
	if hasDups(cells) {
		t.Fatalf("cells must be de-duplicated")
	}
}

func TestPointCell_InsideCoveringBBox(t *testing.T) {
	m, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bb := model.BBox{MinLng: 69.10, MinLat: 41.20, MaxLng: 69.40, MaxLat: 41.40}

	cell, err := m.CellForPoint(41.30, 69.25)
	if err != nil {
		t.Fatalf("CellForPoint: %v", err)
	}

	cells, err := m.CellsForBBox(bb)
	if err != nil {
		t.Fatalf("CellsForBBox: %v", err)
	}
	found := false
	for _, c := range cells {
		if c == cell {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("cell of an interior point must be covered by the bbox cells")
	}
}

func TestGeometry_PolygonDeterministic(t *testing.T) {
	m, err := New(9)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	poly := orb.Polygon{{
		{69.20, 41.25}, {69.30, 41.25}, {69.30, 41.32}, {69.20, 41.32}, {69.20, 41.25},
	}}

	cp, err := m.CellsForGeometry(poly)
	if err != nil {
		t.Fatalf("polygon: %v", err)
	}
	if len(cp) == 0 {
		t.Fatalf("expected non-empty polygon coverage")
	}
	if !sort.StringsAreSorted(cp) || hasDups(cp) {
		t.Fatalf("polygon cells must be sorted + unique")
	}
	cp2, err := m.CellsForGeometry(poly)
	if err != nil {
		t.Fatalf("polygon second call: %v", err)
	}
	if !reflect.DeepEqual(cp, cp2) {
		t.Fatalf("expected identical output for identical input")
	}
}

func TestGeometry_PointMapsToOneCell(t *testing.T) {
	m, _ := New(8)
	cells, err := m.CellsForGeometry(orb.Point{69.25, 41.30})
	if err != nil {
		t.Fatalf("point: %v", err)
	}
	if len(cells) != 1 {
		t.Fatalf("point must map to exactly one cell, got %v", cells)
	}
}

func TestBounds_InvalidResolutionAndDegeneratePolygon(t *testing.T) {
	if _, err := New(-1); err == nil {
		t.Fatalf("expected error for res=-1")
	}
	if _, err := New(16); err == nil {
		t.Fatalf("expected error for res=16")
	}

	m, _ := New(8)
	if _, err := m.CellsForGeometry(orb.Polygon{}); err == nil {
		t.Fatalf("expected error for empty polygon")
	}
	if _, err := m.CellsForGeometry(orb.Polygon{{}}); err == nil {
		t.Fatalf("expected error for degenerate ring")
	}
}

func hasDups(s []string) bool {
	seen := map[string]struct{}{}
	for _, v := range s {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}
