// Package h3mapper maps viewports and facility locations to h3 cells.
// Cells are the join point between cached viewport queries and
// facility change events: a query registers the cells its bbox covers,
// a change event resolves to the cells its location touches.
package h3mapper

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/umarovb/agromap-core/internal/core/model"
)

type Mapper struct {
	res int
}

func New(res int) (*Mapper, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	return &Mapper{res: res}, nil
}

func (m *Mapper) Resolution() int { return m.res }

// CellsForBBox returns the sorted unique cells covering a viewport.
func (m *Mapper) CellsForBBox(bb model.BBox) ([]string, error) {
	// rectangular loop in degrees, v4 wants lat/lng structs
	outer := h3.GeoLoop{
		{Lat: bb.MinLat, Lng: bb.MinLng},
		{Lat: bb.MinLat, Lng: bb.MaxLng},
		{Lat: bb.MaxLat, Lng: bb.MaxLng},
		{Lat: bb.MaxLat, Lng: bb.MinLng},
	}
	return polyfillOne(outer, nil, m.res)
}

// CellForPoint returns the single cell containing a facility location.
func (m *Mapper) CellForPoint(lat, lng float64) (string, error) {
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lng}, m.res)
	if err != nil {
		return "", fmt.Errorf("h3 point to cell: %w", err)
	}
	return c.String(), nil
}

// CellsForGeometry returns the sorted unique cells a drawn geometry
// touches. Points map to one cell; polygons and multipolygons are
// polyfilled per part.
func (m *Mapper) CellsForGeometry(g orb.Geometry) ([]string, error) {
	switch v := g.(type) {
	case orb.Point:
		c, err := m.CellForPoint(v[1], v[0])
		if err != nil {
			return nil, err
		}
		return []string{c}, nil
	case orb.Polygon:
		outer, holes, err := toPolygonLoops(v)
		if err != nil {
			return nil, err
		}
		return polyfillOne(outer, holes, m.res)
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, errors.New("empty multipolygon")
		}
		seen := make(map[string]struct{})
		var out []string
		for pi, poly := range v {
			outer, holes, err := toPolygonLoops(poly)
			if err != nil {
				return nil, fmt.Errorf("polygon %d: %w", pi, err)
			}
			cells, err := polyfillOne(outer, holes, m.res)
			if err != nil {
				return nil, err
			}
			for _, c := range cells {
				if _, ok := seen[c]; !ok {
					seen[c] = struct{}{}
					out = append(out, c)
				}
			}
		}
		sort.Strings(out)
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", g)
	}
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func toPolygonLoops(poly orb.Polygon) (h3.GeoLoop, []h3.GeoLoop, error) {
	if len(poly) == 0 {
		return nil, nil, errors.New("empty polygon")
	}
	outer := toLoop(poly[0])
	if len(outer) < 3 {
		return nil, nil, errors.New("outer ring has < 3 vertices")
	}
	var holes []h3.GeoLoop
	for i := 1; i < len(poly); i++ {
		h := toLoop(poly[i])
		if len(h) < 3 {
			return nil, nil, fmt.Errorf("hole %d has < 3 vertices", i-1)
		}
		holes = append(holes, h)
	}
	return outer, holes, nil
}

// Convert an orb ring to an h3.GeoLoop (in degrees). If the ring is
// explicitly closed (last == first), drop the trailing duplicate.
func toLoop(ring orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(ring))
	for _, p := range ring {
		loop = append(loop, h3.LatLng{Lat: p[1], Lng: p[0]})
	}
	if len(loop) >= 2 {
		last := loop[len(loop)-1]
		first := loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}

// polyfillOne computes unique cells and returns them sorted for determinism.
func polyfillOne(outer h3.GeoLoop, holes []h3.GeoLoop, res int) ([]string, error) {
	if len(outer) < 3 {
		return nil, errors.New("outer ring has < 3 vertices")
	}
	poly := h3.GeoPolygon{
		GeoLoop: outer,
		Holes:   holes,
	}

	indexes, err := h3.PolygonToCells(poly, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
